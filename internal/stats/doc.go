// Package stats computes image statistics on luma planes: the median grey
// level over an auto-exposure rectangle, and downscaled JPEG thumbnails.
package stats
