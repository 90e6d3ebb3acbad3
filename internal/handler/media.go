package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-scheduling/internal/media"
)

// multipartOverhead is the slack allowed on top of the file limit for the
// other form fields and part headers.
const multipartOverhead = 1 << 20

// readUpload reads the multipart file field name, refusing anything over
// limit bytes with a 413.
func readUpload(c echo.Context, name string, limit int64) ([]byte, *multipart.FileHeader, error) {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit+multipartOverhead)

	fh, err := c.FormFile(name)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, tooLarge(limit)
		}
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, name+" required")
	}
	if fh.Size > limit {
		return nil, nil, tooLarge(limit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	if int64(len(data)) > limit {
		return nil, nil, tooLarge(limit)
	}
	if len(data) == 0 {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, name+" is empty")
	}
	return data, fh, nil
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %dMB", limit>>20))
}

// serveBlob answers with data through the range server, typed by sniffing.
func serveBlob(c echo.Context, data []byte, class media.Class, cacheControl string) error {
	resp := media.Serve(data, int64(len(data)), c.Request().Header.Get("Range"), media.Sniff(data, class))
	resp.Header.Set("Cache-Control", cacheControl)
	return resp.Write(c.Response())
}
