package records

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/ehr/medjson/internal/platform/filestore"
	"github.com/ehr/medjson/internal/platform/metrics"
	"github.com/ehr/medjson/internal/platform/uploads"
)

const (
	testRecordsDir = "/media/medical_json"
	testUploadsDir = "/media/json_files"
)

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return newTestServiceOn(fsys, fsys), fsys
}

func newTestServiceOn(storeFs, stageFs afero.Fs) *Service {
	return newTestServiceWithStaging(storeFs, filestore.New(stageFs, testUploadsDir, zerolog.Nop()))
}

func newTestServiceWithStaging(storeFs afero.Fs, staging *filestore.Store) *Service {
	store := filestore.New(storeFs, testRecordsDir, zerolog.Nop())
	stager := uploads.NewFileStager(staging, 1024)
	svc := NewService(store, stager, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func countFiles(t *testing.T, fsys afero.Fs, dir string) int {
	t.Helper()
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

func TestService_Create(t *testing.T) {
	svc, fsys := newTestService(t)
	id := uuid.MustParse("6f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f")
	svc.newID = func() uuid.UUID { return id }

	created, err := svc.Create(context.Background(), validForm())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Filename != "medical_record_"+id.String()+".json" {
		t.Errorf("Filename = %q", created.Filename)
	}

	raw, err := afero.ReadFile(fsys, testRecordsDir+"/"+created.Filename)
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	for _, want := range []string{
		`"id": "` + id.String() + `"`,
		`"patient_name": "Ann Lee"`,
		`"age": 42`,
		`"temperature": 36.6`,
		`"heart_rate": null`,
		`"created_at": "2024-03-01T12:00:00.000000Z"`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("record missing %s:\n%s", want, raw)
		}
	}
}

func TestService_Create_AgeBoundary(t *testing.T) {
	svc, fsys := newTestService(t)
	in := validForm()
	in[FieldAge] = "150"

	created, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Record.Age != 150 {
		t.Errorf("Age = %d", created.Record.Age)
	}
	if n := countFiles(t, fsys, testRecordsDir); n != 1 {
		t.Errorf("expected 1 file, got %d", n)
	}
}

func TestService_Create_InvalidWritesNothing(t *testing.T) {
	for _, age := range []string{"151", "-1"} {
		t.Run(age, func(t *testing.T) {
			svc, fsys := newTestService(t)
			in := validForm()
			in[FieldAge] = age

			_, err := svc.Create(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) || !verr.Has(FieldAge) {
				t.Fatalf("expected age validation error, got %v", err)
			}
			if n := countFiles(t, fsys, testRecordsDir); n != 0 {
				t.Errorf("expected no files, got %d", n)
			}
		})
	}
}

func TestService_Create_StorageFailure(t *testing.T) {
	svc := newTestServiceOn(afero.NewReadOnlyFs(afero.NewMemMapFs()), afero.NewMemMapFs())

	_, err := svc.Create(context.Background(), validForm())
	var ioErr *filestore.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *filestore.IOError, got %v", err)
	}
}

func TestService_Upload(t *testing.T) {
	svc, fsys := newTestService(t)
	body := `{"patient_name":"Bo","age":30,"gender":"male","height":180,"weight":80}`

	res, err := svc.Upload(context.Background(), "bo.json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Filename, "uploaded_") || !strings.HasSuffix(res.Filename, ".json") {
		t.Errorf("Filename = %q", res.Filename)
	}
	if res.OriginalName != "bo.json" || res.Size != int64(len(body)) || len(res.Hash) != 64 {
		t.Errorf("unexpected result %+v", res)
	}

	stored, err := afero.ReadFile(fsys, testRecordsDir+"/"+res.Filename)
	if err != nil {
		t.Fatalf("reading stored upload: %v", err)
	}
	if string(stored) != body {
		t.Errorf("stored bytes changed: %s", stored)
	}
	if n := countFiles(t, fsys, testUploadsDir); n != 0 {
		t.Errorf("expected candidate to be discarded, %d files left", n)
	}
}

func TestService_Upload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		body        string
		wantReason  string
		wantDeleted bool
	}{
		{"invalid json", "bad.json", `{"patient_name": "A"`, "invalid json", true},
		{"missing weight", "w.json", `{"patient_name":"A","age":1,"gender":"male","height":1}`, "weight", true},
		{"too large", "big.json", `{"x":"` + strings.Repeat("a", 2048) + `"}`, "file too large: maximum size is 1 KB", false},
		{"no name", " ", `{}`, "file name is required", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			fsys := afero.NewMemMapFs()
			staging := filestore.New(fsys, testUploadsDir, zerolog.New(&logs).Level(zerolog.DebugLevel))
			svc := newTestServiceWithStaging(fsys, staging)

			_, err := svc.Upload(context.Background(), tt.filename, strings.NewReader(tt.body))
			var uerr *UploadValidationError
			if !errors.As(err, &uerr) {
				t.Fatalf("expected *UploadValidationError, got %v", err)
			}
			if !strings.Contains(uerr.Reason, tt.wantReason) {
				t.Errorf("reason %q does not contain %q", uerr.Reason, tt.wantReason)
			}
			if n := countFiles(t, fsys, testRecordsDir) + countFiles(t, fsys, testUploadsDir); n != 0 {
				t.Errorf("expected no files anywhere, got %d", n)
			}
			if deleted := strings.Contains(logs.String(), "document deleted"); deleted != tt.wantDeleted {
				t.Errorf("candidate deleted through staging store = %v, want %v (logs: %s)", deleted, tt.wantDeleted, logs.String())
			}
		})
	}
}

func TestService_ListRecords_NewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		in := validForm()
		in[FieldPatientName] = name
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	files, err := svc.ListRecords(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 records, got %d", len(files))
	}
	var got []string
	for _, f := range files {
		got = append(got, f.Data.(map[string]any)[FieldPatientName].(string))
	}
	if strings.Join(got, ",") != "third,second,first" {
		t.Errorf("order = %v", got)
	}
}

func TestService_ListFiles_EmptyStore(t *testing.T) {
	svc, _ := newTestService(t)

	files, err := svc.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %d", len(files))
	}
	ok, err := svc.StoreExists(context.Background())
	if err != nil || ok {
		t.Errorf("expected missing store, got ok=%v err=%v", ok, err)
	}
}

func TestService_Metrics(t *testing.T) {
	svc, _ := newTestService(t)
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	svc.SetMetrics(m)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validForm()); err != nil {
		t.Fatalf("create: %v", err)
	}
	bad := validForm()
	bad[FieldAge] = "999"
	_, _ = svc.Create(ctx, bad)
	_, _ = svc.Upload(ctx, "x.json", strings.NewReader(`[]`))

	if got := testutil.ToFloat64(m.RecordsCreatedTotal); got != 1 {
		t.Errorf("records created = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordValidationFailed); got != 1 {
		t.Errorf("validation failures = %v", got)
	}
	if got := testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected uploads = %v", got)
	}
}

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		5 << 20: "5 MB",
		1024:    "1 KB",
		1500:    "1500 bytes",
	}
	for in, want := range tests {
		if got := humanSize(in); got != want {
			t.Errorf("humanSize(%d) = %q, want %q", in, got, want)
		}
	}
}
