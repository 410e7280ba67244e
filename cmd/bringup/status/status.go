// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package status shows operator feedback while a blocking step runs.
package status

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// An Indicator starts a Task for every blocking step.
type Indicator interface {
	Begin(message string) Task
}

// A Task must be finished exactly once with the outcome of the step.
type Task interface {
	Done(err error)
}

// Run executes fn while ind shows message. The task is finished before Run
// returns, also when fn panics.
func Run(ind Indicator, message string, fn func() error) (err error) {
	task := ind.Begin(message)
	finished := false
	defer func() {
		if !finished {
			task.Done(errors.New("interrupted"))
		}
	}()
	err = fn()
	finished = true
	task.Done(err)
	return err
}

// New returns a spinner when w is a terminal and line-based output otherwise.
func New(w io.Writer) Indicator {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return &Spinner{w: w}
	}
	return &Plain{w: w}
}

const spinnerTemplate = `{{ cycle . "|" "/" "-" "\\" }} {{ string . "message" }}`

// Spinner animates a pb bar without a total.
type Spinner struct {
	w io.Writer
}

func (s *Spinner) Begin(message string) Task {
	bar := pb.ProgressBarTemplate(spinnerTemplate).New(0)
	bar.SetWriter(s.w)
	bar.SetRefreshRate(150 * time.Millisecond)
	bar.Set("message", message)
	bar.Set(pb.CleanOnFinish, true)
	bar.Start()
	return &spinnerTask{w: s.w, bar: bar, message: message}
}

type spinnerTask struct {
	w       io.Writer
	bar     *pb.ProgressBar
	message string
	once    sync.Once
}

func (t *spinnerTask) Done(err error) {
	t.once.Do(func() {
		t.bar.Finish()
		report(t.w, t.message, err)
	})
}

// Plain prints one line when a step begins and one when it ends.
type Plain struct {
	w io.Writer
}

func (p *Plain) Begin(message string) Task {
	fmt.Fprintf(p.w, "%s...\n", message)
	return &plainTask{w: p.w, message: message}
}

type plainTask struct {
	w       io.Writer
	message string
	once    sync.Once
}

func (t *plainTask) Done(err error) {
	t.once.Do(func() {
		report(t.w, t.message, err)
	})
}

func report(w io.Writer, message string, err error) {
	if err != nil {
		Fail(w, "%s: %v", message, err)
		return
	}
	Success(w, "%s", message)
}

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed, color.Bold)
)

func Success(w io.Writer, format string, args ...interface{}) {
	successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func Warn(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprintf(w, "! "+format+"\n", args...)
}

func Fail(w io.Writer, format string, args ...interface{}) {
	failColor.Fprintf(w, "✗ "+format+"\n", args...)
}

// Progress wraps r in an upload progress bar of size total. The returned
// function finishes the bar.
func Progress(w io.Writer, name string, total int64, r io.Reader) (io.Reader, func()) {
	bar := pb.New64(total)
	bar.SetTemplate(pb.Full)
	bar.SetWriter(w)
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", name+" ")
	bar.Start()
	return bar.NewProxyReader(r), func() { bar.Finish() }
}
