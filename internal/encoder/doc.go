// Package encoder launches and feeds the external ffmpeg process that turns
// a still image into a continuous RTSP H.264 stream.
//
// The daemon never links a media library. ffmpeg reads raw BGR24 frames on
// stdin at the configured frame rate and handles encoding and RTSP publishing
// itself; this package builds the argument list, renders frames from the
// image under the task cursor, and supervises the process lifecycle.
package encoder
