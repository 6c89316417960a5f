// Package dback implements the page-level algebra of an on-disk B+-tree
// index: the primitives a tree-descent layer composes to search, insert,
// delete, split, concatenate, and redistribute fixed-width key/value
// entries across pages.
//
// Keys are opaque fixed-width byte strings (the typical case is a 16-byte
// UUID); values are either a fixed-width user payload (leaf pages) or a
// 4-byte child page number (non-leaf pages). A page's byte layout -
// header, values array, keys array - is a deterministic function of an
// IndexHeader computed once from (page size, key size, value size).
//
// This package never does its own file I/O, buffer pinning, tree
// descent, or write-ahead logging; it operates only on buffers handed to
// it and locks handed to it. See the tree package for a minimal
// single-writer orchestration layer built on top of these primitives,
// and pagestore for a page buffer source.
package dback
