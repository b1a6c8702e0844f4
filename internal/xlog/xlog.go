// Package xlog centralizes structured logging setup.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package xlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the module's standard logger: JSON in non-TTY environments
// (log aggregators), text with color when attached to a terminal.
func New(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if fi, _ := os.Stderr.Stat(); fi != nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// Component returns a logger.Entry scoped to one named subsystem, the
// shape every package in this module logs through.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
