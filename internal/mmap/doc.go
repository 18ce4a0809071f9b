// Package mmap provides read-only memory-mapped file access.
//
// Chunk blobs served from the local file system are mapped instead of
// copied onto the heap. A Mapping owns the mapped bytes: slices returned
// by Bytes are valid only until Close.
//
//	m, err := mmap.Open("chunk.dxc")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// On Unix the package uses mmap(2) with madvise(2) for access hints.
// On Windows it uses CreateFileMapping/MapViewOfFile and Advise is a no-op.
package mmap
