//go:build !whisper

package stt

import "errors"

func newWhisperEngine() (Engine, error) {
	return nil, errors.New("stt: binary built without whisper support (rebuild with -tags whisper)")
}
