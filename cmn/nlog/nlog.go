// Package nlog is a small leveled logger in the shape of aistore's
// cmn/nlog: cheap to call at a verbosity level that is usually
// disabled, safe to call from any goroutine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelVerbose
)

var (
	threshold int32 = int32(LevelInfo)
	std             = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// SetLevel adjusts the process-wide verbosity threshold.
func SetLevel(l Level) { atomic.StoreInt32(&threshold, int32(l)) }

func enabled(l Level) bool { return int32(l) <= atomic.LoadInt32(&threshold) }

func Infoln(args ...any) {
	if enabled(LevelInfo) {
		std.Output(2, "I "+fmt.Sprintln(args...))
	}
}

func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		std.Output(2, "I "+fmt.Sprintf(format, args...))
	}
}

func Warningln(args ...any) {
	if enabled(LevelWarning) {
		std.Output(2, "W "+fmt.Sprintln(args...))
	}
}

func Warningf(format string, args ...any) {
	if enabled(LevelWarning) {
		std.Output(2, "W "+fmt.Sprintf(format, args...))
	}
}

func Errorln(args ...any) {
	if enabled(LevelError) {
		std.Output(2, "E "+fmt.Sprintln(args...))
	}
}

func Errorf(format string, args ...any) {
	if enabled(LevelError) {
		std.Output(2, "E "+fmt.Sprintf(format, args...))
	}
}

// FastV reports whether verbose logging at level v is enabled,
// mirroring aistore's cmn.Rom.FastV gate used to skip formatting
// work on the hot path when disabled.
func FastV(v int) bool {
	return enabled(Level(v))
}
