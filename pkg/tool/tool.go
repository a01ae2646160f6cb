// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains various helper utilitites useful for implementation of command line tools.
package tool

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

func Failf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func Fail(err error) {
	Failf("%v", err)
}

// ListFlag allows passing a comma-separated list of values to a single flag.
type ListFlag []string

func (l *ListFlag) String() string {
	return strings.Join(*l, ",")
}

// Set is used by flag.Parse to parse the command line argument.
func (l *ListFlag) Set(value string) error {
	if len(*l) > 0 {
		return errors.New("list flag was already set")
	}
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		*l = append(*l, v)
	}
	return nil
}

// EnumFlag restricts a string flag to a fixed set of values.
type EnumFlag struct {
	Value   string
	Allowed []string
}

func (e *EnumFlag) String() string {
	return e.Value
}

func (e *EnumFlag) Set(value string) error {
	for _, v := range e.Allowed {
		if v == value {
			e.Value = value
			return nil
		}
	}
	return fmt.Errorf("bad value %q, want one of %v", value, strings.Join(e.Allowed, "/"))
}
