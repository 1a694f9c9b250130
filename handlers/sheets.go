package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/dispatch"
	"github.com/dmitrymomot/mailroom/ingest"
	"github.com/dmitrymomot/mailroom/middlewares"
	"github.com/dmitrymomot/mailroom/requests"
)

// MaxUploadSize bounds a spreadsheet upload.
const MaxUploadSize = 20 << 20

// Sheets serves spreadsheet upload and the sheet send endpoints.
type Sheets struct {
	svc Service
}

// NewSheets creates the spreadsheet handler.
func NewSheets(svc Service) *Sheets {
	return &Sheets{svc: svc}
}

// Routes implements mailroom.Handler.
func (h *Sheets) Routes(r mailroom.Router) {
	r.POST("/api/upload-sheet", h.upload)
	r.POST("/api/send-sheet-emails", h.send)
	r.POST("/api/schedule-sheet-emails", h.schedule)
}

// UploadResponse previews the rows read from a sheet.
type UploadResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Rows    []ingest.Row     `json:"rows"`
	Skipped []ingest.Skipped `json:"skipped"`
}

func (h *Sheets) upload(c mailroom.Context) error {
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return mailroom.ErrBadRequest("Invalid multipart form", mailroom.WithError(err))
	}

	file, header, err := c.FormFile("file")
	if err != nil {
		return mailroom.ErrBadRequest("No file uploaded", mailroom.WithError(err))
	}
	defer file.Close()

	mapping := ingest.ColumnMapping{
		Email:   r.FormValue("email_column"),
		Subject: r.FormValue("subject_column"),
		Body:    r.FormValue("body_column"),
		Name:    r.FormValue("name_column"),
	}
	res, err := ingest.Parse(file, header.Filename, mapping)
	if err != nil {
		return sheetError(err)
	}

	c.LogInfo("sheet parsed", "file", header.Filename, "rows", len(res.Rows), "skipped", len(res.Skipped))
	skipped := res.Skipped
	if skipped == nil {
		skipped = []ingest.Skipped{}
	}
	return c.JSON(http.StatusOK, UploadResponse{
		Status:  "success",
		Message: fmt.Sprintf("Parsed %d rows from %s", len(res.Rows), header.Filename),
		Rows:    res.Rows,
		Skipped: skipped,
	})
}

func (h *Sheets) send(c mailroom.Context) error {
	var req dispatch.SheetRequest
	if err := requests.Decode(c.Request().Body, requests.Sheet, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.SendSheetNow(middlewares.GetTimeoutContext(c), req))
}

func (h *Sheets) schedule(c mailroom.Context) error {
	var req dispatch.SheetRequest
	if err := requests.Decode(c.Request().Body, requests.Sheet, &req); err != nil {
		return err
	}
	return respond(c)(h.svc.ScheduleSheet(c, req))
}

func sheetError(err error) error {
	var missing *ingest.MissingColumnsError
	switch {
	case errors.As(err, &missing):
		return mailroom.ErrBadRequest(fmt.Sprintf("Missing columns: %v", missing.Columns), mailroom.WithError(err))
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return mailroom.ErrBadRequest("Unsupported file format, upload .xlsx or .csv", mailroom.WithError(err))
	case errors.Is(err, ingest.ErrEmptySheet):
		return mailroom.ErrBadRequest("The sheet has no usable rows", mailroom.WithError(err))
	case errors.Is(err, ingest.ErrReadFailed):
		return mailroom.ErrBadRequest("Failed to read file", mailroom.WithError(err))
	default:
		return err
	}
}
