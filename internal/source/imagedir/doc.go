// Package imagedir serves a directory of page images as a document.
//
// Each image file is one page, ordered by natural filename order so that
// page-2.png sorts before page-10.png. PNG, JPEG and GIF are decoded by the
// standard library; BMP, TIFF and WebP by golang.org/x/image. A page's
// pixel dimensions are its size in page units.
//
// Glyph geometry comes from an optional YAML sidecar next to each image
// (page-001.png → page-001.yaml). See sidecar.go for the format.
//
// With WithWatch the directory is watched for changes. Edits to a page are
// reported through the change handler so the viewer can re-render it, and
// removal of the directory marks the source unavailable.
package imagedir
