// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"text/template"

	"github.com/alessio/shellescape"
	"github.com/wick2006/embedded-development/cmd/bringup/config"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
	"github.com/wick2006/embedded-development/cmd/bringup/remote"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
)

// BootLoader rewrites the boot loader environment over the serial line.
type BootLoader interface {
	Run(ctx context.Context) error
}

// A Confirmer asks the operator to go on. It returns an error if the
// operator declined.
type Confirmer func(ctx context.Context, message string) error

const confirmMessage = "Review and adjust the device specific settings now. Continue with the boot loader configuration"

// Plan holds the inputs of the provisioning sequence.
type Plan struct {
	ScratchDir    string
	AudioPatchDir string
	// LocatePackage finds the application package archive.
	LocatePackage func() (*directory.Package, error)

	Audio []config.Command
	App   []config.Command
	Logo  config.Logo

	Confirm    Confirmer
	BootLoader BootLoader
}

// Stages returns the provisioning sequence: audio patch, application
// package, boot logo, confirmation and boot loader. The first two and the
// confirmation end with a reboot.
func (p *Plan) Stages() []Stage {
	return []Stage{
		{Name: "Install the USB audio patch", Remote: true, Run: p.installAudioPatch},
		{Name: "Install the application package", Remote: true, Run: p.installApplication},
		{Name: "Write the boot logo", Remote: true, Run: p.writeBootLogo},
		{Name: "Confirm the device settings", Remote: true, Run: p.confirm},
		{Name: "Configure the boot loader", Run: p.configureBootLoader},
	}
}

func (p *Plan) installAudioPatch(ctx context.Context, m *Machine) Result {
	stat, err := os.Stat(p.AudioPatchDir)
	if err != nil || !stat.IsDir() {
		return Fail(fmt.Errorf("the audio patch directory '%s' does not exist", p.AudioPatchDir))
	}

	var count int
	err = status.Run(m.Indicator, fmt.Sprintf("Copying %s to %s", p.AudioPatchDir, p.ScratchDir), func() error {
		var err error
		count, err = m.Session().PushDir(ctx, p.AudioPatchDir, p.ScratchDir)
		return err
	})
	if err != nil {
		return Fail(err)
	}
	if count == 0 {
		return Fail(fmt.Errorf("the audio patch directory '%s' contains no files", p.AudioPatchDir))
	}

	if err := m.RunCommands(ctx, p.Audio, p.templateData(nil)); err != nil {
		return Fail(err)
	}
	return RebootDevice(fmt.Sprintf("Audio patch installed (%d files)", count))
}

func (p *Plan) installApplication(ctx context.Context, m *Machine) Result {
	pkg, err := p.LocatePackage()
	if err != nil {
		return Fail(err)
	}
	if pkg.Version == nil {
		status.Warn(m.Out, "Couldn't determine the version of %s", pkg.Name())
	}
	fmt.Fprintf(m.Out, "Using %s\n", pkg)

	err = status.Run(m.Indicator, fmt.Sprintf("Copying %s to %s", pkg.Name(), p.ScratchDir), func() error {
		return m.Session().Push(ctx, pkg.Path, p.ScratchDir)
	})
	if err != nil {
		return Fail(err)
	}

	if err := m.RunCommands(ctx, p.App, p.templateData(pkg)); err != nil {
		return Fail(err)
	}
	return RebootDevice(fmt.Sprintf("Application package %s installed", pkg.Name()))
}

func (p *Plan) writeBootLogo(ctx context.Context, m *Machine) Result {
	if err := m.RunCommands(ctx, p.Logo.Commands, p.templateData(nil)); err != nil {
		return Fail(err)
	}
	return Proceed(fmt.Sprintf("Boot logo written to %s", p.Logo.Device))
}

func (p *Plan) confirm(ctx context.Context, m *Machine) Result {
	if p.Confirm != nil {
		if err := p.Confirm(ctx, confirmMessage); err != nil {
			return Fail(err)
		}
	}
	return RebootDevice("Device settings confirmed")
}

func (p *Plan) configureBootLoader(ctx context.Context, m *Machine) Result {
	if err := p.BootLoader.Run(ctx); err != nil {
		return Fail(err)
	}
	return Proceed("Boot loader configured")
}

// TemplateData is available to the command templates. Every value is
// quoted for the shell.
type TemplateData struct {
	ScratchDir       string
	Package          string
	RemotePackage    string
	RemotePackageDir string
	LogoSource       string
	LogoStaging      string
	LogoDevice       string
	BlockSize        string
}

func (p *Plan) templateData(pkg *directory.Package) TemplateData {
	data := TemplateData{
		ScratchDir:  shellescape.Quote(p.ScratchDir),
		LogoSource:  shellescape.Quote(p.Logo.Source),
		LogoStaging: shellescape.Quote(p.Logo.Staging),
		LogoDevice:  shellescape.Quote(p.Logo.Device),
		BlockSize:   strconv.Itoa(p.Logo.BlockSize),
	}
	if pkg != nil {
		data.Package = shellescape.Quote(pkg.Name())
		data.RemotePackage = shellescape.Quote(path.Join(p.ScratchDir, pkg.Name()))
		data.RemotePackageDir = shellescape.Quote(path.Join(p.ScratchDir, pkg.UnpackedName()))
	}
	return data
}

// Render expands the command template line.
func Render(line string, data TemplateData) (string, error) {
	tmpl, err := template.New("command").Option("missingkey=error").Parse(line)
	if err != nil {
		return "", fmt.Errorf("invalid command '%s': %w", line, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("invalid command '%s': %w", line, err)
	}
	return sb.String(), nil
}

// RunCommands runs cmds in order on the session and stops at the first one
// that failed and wasn't tolerated.
func (m *Machine) RunCommands(ctx context.Context, cmds []config.Command, data TemplateData) error {
	if m.session == nil {
		return errors.New("no session")
	}
	for _, c := range cmds {
		line, err := Render(c.Run, data)
		if err != nil {
			return err
		}
		cmd := remote.Command{Line: line, Tolerate: c.Tolerate, Verbose: c.Verbose}

		var outcome remote.Outcome
		err = status.Run(m.Indicator, line, func() error {
			var err error
			outcome, err = m.session.Run(ctx, cmd)
			if err != nil {
				return err
			}
			if !outcome.OK() {
				return &remote.CommandError{Outcome: outcome}
			}
			return nil
		})
		m.report(cmd, outcome)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) report(cmd remote.Command, outcome remote.Outcome) {
	m.Logger.Debug("command outcome",
		"command", outcome.Command,
		"exit_status", outcome.ExitStatus,
		"stdout", remote.Truncate(outcome.Stdout, 200),
		"stderr", outcome.Stderr)

	if outcome.Tolerated {
		status.Warn(m.Out, "'%s' failed with exit status %d, ignored", outcome.Command, outcome.ExitStatus)
	}
	if !cmd.Verbose {
		return
	}
	fmt.Fprintf(m.Out, "  exit status: %d\n", outcome.ExitStatus)
	if stdout := strings.TrimSpace(outcome.Stdout); stdout != "" {
		fmt.Fprintf(m.Out, "  stdout: %s\n", remote.Truncate(stdout, 200))
	}
	if stderr := strings.TrimSpace(outcome.Stderr); stderr != "" {
		fmt.Fprintf(m.Out, "  stderr: %s\n", stderr)
	}
}
