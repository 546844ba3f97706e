// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || freebsd || netbsd || openbsd

package isatty

import "golang.org/x/sys/unix"

const ioctlReadTermios = unix.TIOCGETA
