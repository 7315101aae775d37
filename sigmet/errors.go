package sigmet

import "errors"

var ErrTruncatedStream = errors.New("source ended mid record")
var ErrMalformedHeader = errors.New("header value out of range")
var ErrUnknownDataType = errors.New("unknown data type")
var ErrIOFailure = errors.New("I/O failure")
var ErrBadArgument = errors.New("bad argument")
var ErrResourceExhausted = errors.New("resource exhausted")
