// Package blockfs exposes a small numbered-handle API over local disk
// storage, standing in for the block-addressable file system the
// container layer was originally written against. Container paths are
// always "<basePath>/<8.3-short-name>.<extension>"; writes retry through
// pkg/retry, and path construction strips separators and dots from every
// name, so no name resolves outside basePath.
package blockfs
