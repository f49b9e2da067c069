package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gomind-http/httpcore/exceptions"
	"github.com/gomind-http/httpcore/request"
)

// DownloadOptions configures the Executor's download variant (spec §4.F
// "Download variant").
type DownloadOptions struct {
	// Path is the caller-supplied destination file path.
	Path string

	// OverwriteExisting, when false, rejects a Download onto a path that
	// already exists with a 409 CONFLICT instead of truncating it.
	OverwriteExisting bool

	// OnProgress, if set, is invoked after every chunk written with the
	// bytes written so far and the total byte count.
	OnProgress func(written, total int64)
}

const downloadChunkSize = 64 * 1024

// Download runs req through Execute and streams the resulting bytes to
// opts.Path, creating the parent directory if missing (spec §4.F). The
// returned Response carries FilePath/FileSize instead of Data.
func (ex *Executor) Download(ctx context.Context, req request.Request, opts DownloadOptions) (*request.Response, error) {
	if !opts.OverwriteExisting {
		if _, err := os.Stat(opts.Path); err == nil {
			exc := exceptions.New(exceptions.TypeClient, exceptions.CodeConflict,
				"destination file already exists", opts.Path, nil)
			return &request.Response{Success: false, StatusCode: 409, ErrorCode: string(exc.Code)}, exc
		}
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, err
	}

	resp, err := ex.Execute(ctx, req)
	if err != nil {
		return resp, err
	}

	data, ok := resp.Data.([]byte)
	if !ok {
		if data, err = json.Marshal(resp.Data); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	total := int64(len(data))
	var written int64
	for written < total {
		end := written + downloadChunkSize
		if end > total {
			end = total
		}
		n, werr := f.Write(data[written:end])
		written += int64(n)
		if opts.OnProgress != nil {
			opts.OnProgress(written, total)
		}
		if werr != nil {
			return nil, werr
		}
	}

	resp.Data = nil
	resp.FilePath = opts.Path
	resp.FileSize = written
	return resp, nil
}
