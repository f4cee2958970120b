//            _     _        _
//   ___  __| |___| |_ __ _| |_ ___
//  / _ \/ _` / __| __/ _` | __/ __|
// |  __/ (_| \__ \ || (_| | |_\__ \
//  \___|\__,_|___/\__\__,_|\__|___/
//
//  Copyright © 2021 - 2026 The edstats Authors. All rights reserved.
//
//  CONTACT: engineering@edstats.io
//

// Package errorcompounder collects independent errors from multi-step
// cleanup work into one, so a failing step never hides the ones after it.
package errorcompounder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type ErrorCompounder interface {
	Add(err error)
	Addf(format string, a ...any)
	AddWrapf(err error, format string, a ...any)

	Empty() bool
	Len() int

	First() error
	ToError() error
}

func New() *errorCompounder {
	return &errorCompounder{}
}

type errorCompounder struct {
	errs []error
}

func (ec *errorCompounder) Add(err error) {
	if err != nil {
		ec.errs = append(ec.errs, err)
	}
}

func (ec *errorCompounder) Addf(format string, a ...any) {
	ec.errs = append(ec.errs, fmt.Errorf(format, a...))
}

func (ec *errorCompounder) AddWrapf(err error, format string, a ...any) {
	if err != nil {
		ec.errs = append(ec.errs, errors.Wrapf(err, format, a...))
	}
}

func (ec *errorCompounder) Empty() bool {
	return len(ec.errs) == 0
}

func (ec *errorCompounder) Len() int {
	return len(ec.errs)
}

func (ec *errorCompounder) First() error {
	if len(ec.errs) == 0 {
		return nil
	}
	return ec.errs[0]
}

func (ec *errorCompounder) ToError() error {
	if len(ec.errs) == 0 {
		return nil
	}

	var b strings.Builder
	for i, err := range ec.errs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(err.Error())
	}
	return errors.New(b.String())
}
