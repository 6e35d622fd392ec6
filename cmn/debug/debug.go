// Package debug provides assertions that compile to no-ops unless built
// with the `debug` build tag, matching aistore's cmn/debug package.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package debug

