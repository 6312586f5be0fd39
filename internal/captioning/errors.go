package captioning

import "errors"

var (
	ErrCaptionSetNotFound = errors.New("caption set not found")
	ErrNothingToCaption   = errors.New("nothing to caption")
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidTransition  = errors.New("job cannot move to the requested status")
	ErrFileNotFound       = errors.New("file not found")
	ErrFileMissingOnDisk  = errors.New("image file not found on disk")
)
