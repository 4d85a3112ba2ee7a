// Package errs holds the error taxonomy shared by the raster, spectral, dataset and
// output packages. Constructors attach a stack trace; every type can be embedded in a
// zerolog event.
package errs

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	warningMu      sync.Mutex
	warningHandler = logWarning
)

func logWarning(w error) {
	ev := log.Warn()
	if m, ok := w.(zerolog.LogObjectMarshaler); ok {
		ev = ev.EmbedObject(m)
	}
	ev.Msg(w.Error())
}

// SetWarningHandler replaces the function that receives non-fatal warnings. A nil
// handler restores logging through zerolog.
func SetWarningHandler(handler func(w error)) {
	warningMu.Lock()
	defer warningMu.Unlock()
	if handler == nil {
		handler = logWarning
	}
	warningHandler = handler
}

// Warn reports a non-fatal condition.
func Warn(w error) {
	warningMu.Lock()
	defer warningMu.Unlock()
	warningHandler(w)
}

// CorruptDataError is returned when a loaded raster holds NaN or infinite values.
type CorruptDataError struct {
	Path   string
	Pixels int
	Reason string
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt raster %s: %s (%d pixels)", e.Path, e.Reason, e.Pixels)
}

func (e *CorruptDataError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("path", e.Path).
		Int("pixels", e.Pixels).
		Str("reason", e.Reason).
		Str("type", "CorruptDataError")
}

func NewCorruptDataError(path, reason string, pixels int) error {
	return errors.WithStack(&CorruptDataError{Path: path, Reason: reason, Pixels: pixels})
}

// MissingChannelError is returned when a sample directory lacks a required channel.
type MissingChannelError struct {
	Dir     string
	Channel string
}

func (e *MissingChannelError) Error() string {
	return fmt.Sprintf("missing file for channel %s in directory %s", e.Channel, e.Dir)
}

func (e *MissingChannelError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("dir", e.Dir).
		Str("channel", e.Channel).
		Str("type", "MissingChannelError")
}

func NewMissingChannelError(dir, channel string) error {
	return errors.WithStack(&MissingChannelError{Dir: dir, Channel: channel})
}

// ShapeMismatchError covers band dimensions that disagree and channel counts that do
// not match what a consumer expects.
type ShapeMismatchError struct {
	Op       string
	Expected []int
	Got      []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape mismatch, expected %v, got %v", e.Op, e.Expected, e.Got)
}

func (e *ShapeMismatchError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("operation", e.Op).
		Ints("expected", e.Expected).
		Ints("got", e.Got).
		Str("type", "ShapeMismatchError")
}

func NewShapeMismatchError(op string, expected, got []int) error {
	return errors.WithStack(&ShapeMismatchError{Op: op, Expected: expected, Got: got})
}

// EmptyDatasetError means no sample survived validation; inference must not run.
type EmptyDatasetError struct {
	BaseDir  string
	Scanned  int
	Rejected int
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("the dataset is empty: %d candidate directories scanned under %s, %d rejected", e.Scanned, e.BaseDir, e.Rejected)
}

func (e *EmptyDatasetError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("base_dir", e.BaseDir).
		Int("scanned", e.Scanned).
		Int("rejected", e.Rejected).
		Str("type", "EmptyDatasetError")
}

func NewEmptyDatasetError(baseDir string, scanned, rejected int) error {
	return errors.WithStack(&EmptyDatasetError{BaseDir: baseDir, Scanned: scanned, Rejected: rejected})
}

// DivisionDegeneracyWarning records pixels of a derived index that came out non-finite
// because a denominator was zero. It is never fatal; the next load of the written file
// rejects it as corrupt.
type DivisionDegeneracyWarning struct {
	Index  string
	Pixels int
	Total  int
}

func (w *DivisionDegeneracyWarning) Error() string {
	return fmt.Sprintf("index %s has %d of %d non-finite pixels (zero denominator)", w.Index, w.Pixels, w.Total)
}

func (w *DivisionDegeneracyWarning) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("index", w.Index).
		Int("pixels", w.Pixels).
		Int("total", w.Total).
		Str("type", "DivisionDegeneracyWarning")
}

func NewDivisionDegeneracyWarning(index string, pixels, total int) *DivisionDegeneracyWarning {
	return &DivisionDegeneracyWarning{Index: index, Pixels: pixels, Total: total}
}

func IsCorruptData(err error) bool {
	var target *CorruptDataError
	return errors.As(err, &target)
}

func IsMissingChannel(err error) bool {
	var target *MissingChannelError
	return errors.As(err, &target)
}

func IsShapeMismatch(err error) bool {
	var target *ShapeMismatchError
	return errors.As(err, &target)
}

func IsEmptyDataset(err error) bool {
	var target *EmptyDatasetError
	return errors.As(err, &target)
}

// Wrap and Wrapf keep the cockroachdb stack attached to wrapped errors.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
