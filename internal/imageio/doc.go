// Package imageio moves pixels between files and GPU layouts.
//
// LoadRGBA decodes PNG, JPEG, GIF, BMP, TIFF and WebP into tightly packed
// RGBA8. FromPixels wraps read-back texture data of a given format into an
// image.Image, and Save encodes an image by file extension.
package imageio
