// Package process runs renderer tools in their own process group, so
// canceling a build also stops the helpers they spawn (dvisvgm starts
// Ghostscript, latex may start mktexpk).
package process
