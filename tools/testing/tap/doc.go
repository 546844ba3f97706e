// Copyright 2020 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tap implements support for the Test Anything Protocol, a
// language-agnostic format for outputting the results of tests:
// https://testanything.org.
package tap
