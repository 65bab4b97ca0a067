package remfile

import "github.com/pkg/errors"

var (
	// ErrRange is returned when a server ignores or garbles a Range request
	ErrRange = errors.New("range request not honored")

	// ErrStatus is returned for unexpected HTTP status codes
	ErrStatus = errors.New("unexpected HTTP status")

	// ErrClosed is returned when reading a closed file
	ErrClosed = errors.New("file already closed")

	// ErrWhence is returned by Seek for an unknown whence
	ErrWhence = errors.New("invalid whence")

	// ErrOffset is returned for negative offsets
	ErrOffset = errors.New("negative offset")

	// ErrScheme is returned for URLs no source can serve
	ErrScheme = errors.New("unsupported URL scheme")

	// ErrInternal is returned when reference counts go wrong
	ErrInternal = errors.New("internal error")
)
