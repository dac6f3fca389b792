/*
Package fileread retrieves length-prefixed transparent files from a card.

The file layout is the one used by most national ID and transport cards: the first two bytes of
the EF hold the big-endian length of the payload that follows. A read runs in three steps:

 1. SELECT the directory holding the file (the Master File 3F00 unless configured otherwise).
 2. SELECT the EF by its 2-byte identifier.
 3. READ BINARY the 2-byte header, then fetch the body in chunks with READ BINARY, each
    request starting at the number of bytes gathered so far.

The accumulator starts at file offset 0, so it holds the header again; the returned content
skips it and is exactly as long as the header declares.
*/
package fileread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
)

// Defaults of a Reader.
const (
	DefaultChunkSize = 253
	DefaultLe        = 0xFF

	// lengthHeader is the size of the big-endian length prefix of the EF.
	lengthHeader = 2
)

// ErrShortRead marks a read that stopped because the card returned no more data.
var ErrShortRead = errors.New("short read")

// File is the outcome of a successful read.
type File struct {
	Path     string // e.g. "3F00/0101"
	Declared int    // Length announced by the header
	Content  []byte // Exactly Declared bytes, header excluded
	Trace    iso7816.Trace

	// Steps splits Trace per command sent, GET RESPONSE and Le retries included.
	Steps []iso7816.Trace

	// Control is the FCI returned when selecting the EF, nil if the card sent none.
	Control *iso7816.FileControlInfo
}

// Reader runs the file-read protocol over one card channel.
type Reader struct {
	client *iso7816.Client
	cla    iso7816.Class

	directory    uint16
	directoryAID []byte
	chunkSize    int
	le           int
	logger       *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithDirectory selects the DF holding the file by identifier.
func WithDirectory(fid uint16) Option {
	return func(r *Reader) {
		r.directory = fid
		r.directoryAID = nil
	}
}

// WithDirectoryAID selects the DF holding the file by application name instead of identifier.
func WithDirectoryAID(aid []byte) Option {
	return func(r *Reader) {
		r.directoryAID = aid
	}
}

// WithChunkSize sets the size used to compute how many READ BINARY batches are issued.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithLe sets the expected length of each body READ BINARY.
func WithLe(n int) Option {
	return func(r *Reader) {
		if n > 0 && n <= iso7816.MaxShortLe {
			r.le = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Reader sending its commands through t.
func New(t iso7816.Transmitter, opts ...Option) *Reader {
	r := &Reader{
		client:    iso7816.NewClient(t),
		directory: iso7816.MasterFile,
		chunkSize: DefaultChunkSize,
		le:        DefaultLe,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "fileread"))
	return r
}

// BatchCount returns how many body reads are planned for a file of declared bytes.
func BatchCount(declared, chunkSize int) int {
	if declared <= 0 || chunkSize <= 0 {
		return 0
	}
	return (declared + chunkSize - 1) / chunkSize
}

// Read selects the EF fid and returns its content.
//
// Any transport failure aborts the read without content and matches reader.ErrTransport.
// Unexpected card answers are *reader.ProtocolError; a file that ends before its declared
// length additionally matches ErrShortRead.
func (r *Reader) Read(ctx context.Context, fid uint16) (*File, error) {
	f := &File{Path: r.path(fid)}

	if err := r.selectDirectory(ctx, f); err != nil {
		return nil, err
	}

	if err := r.selectFile(ctx, f, fid); err != nil {
		return nil, err
	}

	declared, err := r.readLength(ctx, f)
	if err != nil {
		return nil, err
	}
	f.Declared = declared

	if size, ok := f.Control.FileSize(); ok && size < declared+lengthHeader {
		r.logger.Warn("declared length exceeds file size",
			slog.String("path", f.Path),
			slog.Int("declared", declared),
			slog.Int("file_size", size))
	}

	content, err := r.readBody(ctx, f, declared)
	if err != nil {
		return nil, err
	}
	f.Content = content

	r.logger.Debug("file read",
		slog.String("path", f.Path),
		slog.Int("bytes", len(content)),
		slog.Int("exchanges", len(f.Trace)))
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		r.logger.Debug("file read report", slog.String("path", f.Path), slog.String("report", f.Report()))
	}

	return f, nil
}

func (r *Reader) selectDirectory(ctx context.Context, f *File) error {
	cmd := iso7816.SelectFile(r.cla, r.directory, iso7816.ReturnNoData)
	if r.directoryAID != nil {
		cmd = iso7816.SelectByAID(r.cla, r.directoryAID)
	}

	trace, err := r.send(ctx, f, cmd)
	if err != nil {
		return fmt.Errorf("select directory: %w", err)
	}
	if !trace.IsSuccess() {
		sw, _ := trace.Status()
		return &reader.ProtocolError{Op: "select directory", Status: sw}
	}
	return nil
}

func (r *Reader) selectFile(ctx context.Context, f *File, fid uint16) error {
	trace, err := r.send(ctx, f, iso7816.SelectEF(r.cla, fid))
	if err != nil {
		return fmt.Errorf("select file %04X: %w", fid, err)
	}
	if !trace.IsSuccess() {
		sw, _ := trace.Status()
		return &reader.ProtocolError{
			Op:     "select file",
			Status: sw,
			Reason: fmt.Sprintf("FID %04X", fid),
		}
	}

	res, err := iso7816.NewSelectResult(trace)
	if err != nil {
		return err
	}
	if len(trace.Data()) == 0 {
		return nil
	}

	fci, err := res.FCI()
	if err != nil {
		// The FCP is informative only; the length header is authoritative.
		r.logger.Debug("unparsable FCP", slog.String("path", f.Path), slog.Any("error", err))
		return nil
	}
	f.Control = fci

	if got, ok := fci.FileID(); ok && got != fid {
		r.logger.Warn("FCP names another file", slog.String("path", f.Path), slog.String("fcp_fid", fmt.Sprintf("%04X", got)))
	}
	if transparent, ok := fci.IsTransparent(); ok && !transparent {
		r.logger.Warn("file is not a transparent EF", slog.String("path", f.Path))
	}
	return nil
}

func (r *Reader) readLength(ctx context.Context, f *File) (int, error) {
	cmd, err := iso7816.ReadBinary(r.cla, 0, lengthHeader)
	if err != nil {
		return 0, err
	}

	trace, err := r.send(ctx, f, cmd)
	if err != nil {
		return 0, fmt.Errorf("read length: %w", err)
	}

	sw, _ := trace.Status()
	data := trace.Data()
	if !sw.IsSuccess() || len(data) < lengthHeader {
		return 0, &reader.ProtocolError{
			Op:     "read length",
			Status: sw,
			Reason: fmt.Sprintf("got %d header bytes", len(data)),
		}
	}

	return int(bits.Join(data[0], data[1])), nil
}

func (r *Reader) readBody(ctx context.Context, f *File, declared int) ([]byte, error) {
	if declared == 0 {
		return []byte{}, nil
	}

	want := declared + lengthHeader
	acc := make([]byte, 0, want)
	batches := BatchCount(declared, r.chunkSize)
	short := false
	var status iso7816.StatusWord

	for i := 0; i < batches && len(acc) < want; i++ {
		offset := len(acc)
		cmd, err := iso7816.ReadBinary(r.cla, offset, r.le)
		if err != nil {
			return nil, &reader.ProtocolError{Op: "read body", Reason: err.Error()}
		}

		trace, err := r.send(ctx, f, cmd)
		if err != nil {
			return nil, fmt.Errorf("read body at offset %d: %w", offset, err)
		}

		sw, _ := trace.Status()
		data := trace.Data()
		if len(data) == 0 {
			short = true
			if k := sw.Kind(); k != iso7816.KindOK && k != iso7816.KindEndOfFile {
				status = sw
			}
			break
		}
		switch sw.Kind() {
		case iso7816.KindOK, iso7816.KindEndOfFile:
		default:
			return nil, &reader.ProtocolError{
				Op:     "read body",
				Status: sw,
				Reason: fmt.Sprintf("offset %d", offset),
			}
		}

		acc = append(acc, data...)
		r.logger.Debug("batch read",
			slog.Int("batch", i+1),
			slog.Int("of", batches),
			slog.Int("offset", offset),
			slog.Int("bytes", len(data)))
	}

	if len(acc) < want {
		pe := &reader.ProtocolError{
			Op:     "read body",
			Status: status,
			Reason: fmt.Sprintf("got %d of %d bytes", len(acc)-min(len(acc), lengthHeader), declared),
		}
		if short {
			pe.Err = ErrShortRead
		}
		return nil, pe
	}

	if got := int(bits.Join(acc[0], acc[1])); got != declared {
		return nil, &reader.ProtocolError{
			Op:     "read body",
			Reason: fmt.Sprintf("length header changed from %d to %d", declared, got),
		}
	}

	return acc[lengthHeader:want], nil
}

// send runs cmd and appends the exchanges to the file trace.
func (r *Reader) send(ctx context.Context, f *File, cmd *iso7816.CommandAPDU) (iso7816.Trace, error) {
	trace, err := r.client.Send(ctx, cmd)
	f.Trace = append(f.Trace, trace...)
	if len(trace) > 0 {
		f.Steps = append(f.Steps, trace)
	}
	if err != nil {
		return nil, err
	}
	return trace, nil
}

func (r *Reader) path(fid uint16) string {
	if r.directoryAID != nil {
		return fmt.Sprintf("%X/%04X", r.directoryAID, fid)
	}
	return fmt.Sprintf("%04X/%04X", r.directory, fid)
}
