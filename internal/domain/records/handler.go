package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medjson/internal/platform/filestore"
	"github.com/ehr/medjson/internal/platform/web"
)

// Route names, used with echo's Reverse for redirects.
const (
	RouteHome         = "home"
	RouteCreateRecord = "create_record"
	RouteUploadJSON   = "upload_json"
	RouteViewFiles    = "view_json_files"
	RouteViewRecords  = "view_records"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Home).Name = RouteHome

	e.GET("/create/", h.CreateForm).Name = RouteCreateRecord
	e.POST("/create/", h.Create)

	e.GET("/upload/", h.UploadForm).Name = RouteUploadJSON
	e.POST("/upload/", h.Upload)

	e.GET("/files/", h.ListFiles).Name = RouteViewFiles
	e.GET("/records/", h.ListRecords).Name = RouteViewRecords
}

// -- Views --

type formField struct {
	Name  string
	Label string
}

var formFields = []formField{
	{FieldPatientName, "Patient name"},
	{FieldAge, "Age"},
	{FieldGender, "Gender"},
	{FieldHeight, "Height (cm)"},
	{FieldWeight, "Weight (kg)"},
	{FieldBloodPressure, "Blood pressure"},
	{FieldHeartRate, "Heart rate"},
	{FieldTemperature, "Temperature (°C)"},
	{FieldSymptoms, "Symptoms"},
	{FieldDiagnosis, "Diagnosis"},
}

type formView struct {
	Form   FormInput
	Errors *ValidationError
	Fields []formField
}

type uploadView struct {
	MaxSize string
}

type fileView struct {
	filestore.StoredFile
	Pretty string
}

type recordRow struct {
	filestore.StoredFile
}

// Field formats a top-level value of the document for display. Missing keys,
// nulls and non-object documents give "".
func (r recordRow) Field(key string) string {
	obj, ok := r.Data.(map[string]any)
	if !ok {
		return ""
	}
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

type listResponse struct {
	Items []filestore.StoredFile `json:"items"`
	Total int                    `json:"total"`
}

// -- Pages --

func (h *Handler) Home(c echo.Context) error {
	return web.Render(c, http.StatusOK, "home", "Medical records", nil)
}

func (h *Handler) CreateForm(c echo.Context) error {
	initial := FormInput{
		FieldTemperature: strconv.FormatFloat(DefaultTemperature, 'f', -1, 64),
	}
	return web.Render(c, http.StatusOK, "create_record", "New medical record", formView{Form: initial, Fields: formFields})
}

func (h *Handler) Create(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form data")
	}
	in := FormInputFromValues(values)

	created, err := h.svc.Create(c.Request().Context(), in)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		if web.WantsJSON(c) {
			return c.JSON(http.StatusUnprocessableEntity, verr)
		}
		return web.Render(c, http.StatusUnprocessableEntity, "create_record", "New medical record",
			formView{Form: in, Errors: verr, Fields: formFields})
	case err != nil:
		return err
	}

	if web.WantsJSON(c) {
		return c.JSON(http.StatusCreated, created)
	}
	web.AddNotice(c, web.LevelSuccess, "Medical record saved successfully.")
	return web.Redirect(c, RouteViewRecords)
}

func (h *Handler) UploadForm(c echo.Context) error {
	return web.Render(c, http.StatusOK, "upload_json", "Upload a JSON file",
		uploadView{MaxSize: humanSize(h.svc.MaxUploadSize())})
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		return h.uploadFailed(c, &UploadValidationError{Reason: "no file was submitted"})
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening uploaded file: %w", err)
	}
	defer f.Close()

	res, err := h.svc.Upload(c.Request().Context(), fh.Filename, f)
	var uerr *UploadValidationError
	switch {
	case errors.As(err, &uerr):
		return h.uploadFailed(c, uerr)
	case err != nil:
		return err
	}

	if web.WantsJSON(c) {
		return c.JSON(http.StatusCreated, res)
	}
	web.AddNotice(c, web.LevelSuccess, fmt.Sprintf("File %s uploaded successfully.", res.OriginalName))
	return web.Redirect(c, RouteViewRecords)
}

func (h *Handler) uploadFailed(c echo.Context, uerr *UploadValidationError) error {
	if web.WantsJSON(c) {
		return c.JSON(http.StatusUnprocessableEntity, web.ErrorPage{
			Status:  http.StatusUnprocessableEntity,
			Message: uerr.Reason,
		})
	}
	web.AddNotice(c, web.LevelError, "Error in file: "+uerr.Reason)
	return web.Redirect(c, RouteUploadJSON)
}

func (h *Handler) ListFiles(c echo.Context) error {
	files, err := h.svc.ListFiles(c.Request().Context())
	if err != nil {
		return err
	}
	if web.WantsJSON(c) {
		return c.JSON(http.StatusOK, listResponse{Items: files, Total: len(files)})
	}
	if len(files) == 0 {
		if err := h.noticeEmpty(c, "No JSON files found."); err != nil {
			return err
		}
	}

	views := make([]fileView, 0, len(files))
	for _, f := range files {
		views = append(views, fileView{StoredFile: f, Pretty: prettyJSON(f.Data)})
	}
	return web.Render(c, http.StatusOK, "view_files", "JSON files", views)
}

func (h *Handler) ListRecords(c echo.Context) error {
	files, err := h.svc.ListRecords(c.Request().Context())
	if err != nil {
		return err
	}
	if web.WantsJSON(c) {
		return c.JSON(http.StatusOK, listResponse{Items: files, Total: len(files)})
	}
	if len(files) == 0 {
		if err := h.noticeEmpty(c, "No medical records found."); err != nil {
			return err
		}
	}

	rows := make([]recordRow, 0, len(files))
	for _, f := range files {
		rows = append(rows, recordRow{StoredFile: f})
	}
	return web.Render(c, http.StatusOK, "view_records", "Medical records", rows)
}

func (h *Handler) noticeEmpty(c echo.Context, text string) error {
	ok, err := h.svc.StoreExists(c.Request().Context())
	if err != nil {
		return err
	}
	if !ok {
		text = "The records directory does not exist yet."
	}
	web.AddNotice(c, web.LevelInfo, text)
	return nil
}

func prettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
