// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !linux

package serial

const nonblockFlag = 0

func open(name string, baudRate int) (Port, error) {
	return openPortable(name, baudRate)
}
