// Package packaging bundles the slide images of completed tasks into a
// single deliverable: a stored zip archive or a landscape PDF with one
// slide per page. Packages are written next to the task output under
// packages/ and only appear once complete.
package packaging
