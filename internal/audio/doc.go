// Package audio decodes input clips into mono float32 PCM and enforces the
// 16 kHz precondition of the embedding models.
package audio
