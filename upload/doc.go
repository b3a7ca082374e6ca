// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package upload places linked shader images where the GPU can run them.
//
// Two uploaders implement backend.Uploader:
//
//   - Memory keeps patched images in host memory at synthetic GPU
//     addresses. It is the default of a Screen and is used by tools and
//     tests that only inspect code.
//   - HAL creates one wgpu/hal shader module per SPIR-V module of each
//     segment, on a device passed directly or found through a
//     gpucontext.DeviceProvider.
//
// Both resolve relocations through the backend.Resolver handed to
// Upload before any code leaves the process.
//
// # Thread Safety
//
// Uploaders are safe for concurrent use.
package upload
