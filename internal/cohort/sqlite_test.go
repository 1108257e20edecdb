package cohort

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-similarity-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cohort.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "cohort-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	patient := testPatient("brca_tcga", "TCGA-A1")

	require.NoError(t, store.Save(ctx, patient))
	assert.False(t, patient.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, patient.UpdatedAt.IsZero(), "UpdatedAt should be set")

	got, err := store.Get(ctx, "brca_tcga", "TCGA-A1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, patient.Name, got.Name)
	assert.Equal(t, patient.Age, got.Age)
	assert.Equal(t, patient.CancerType, got.CancerType)
	assert.Equal(t, patient.SampleIDs, got.SampleIDs)
	assert.Equal(t, patient.Mutations, got.Mutations, "mutations keep their input order")
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	got, err := store.Get(context.Background(), "brca_tcga", "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_Save_Update(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	patient := testPatient("brca_tcga", "TCGA-A1")
	require.NoError(t, store.Save(ctx, patient))
	created := patient.CreatedAt

	patient.Age = 55
	patient.Mutations = patient.Mutations[1:]
	require.NoError(t, store.Save(ctx, patient))

	got, err := store.Get(ctx, "brca_tcga", "TCGA-A1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 55, got.Age)
	require.Len(t, got.Mutations, 1)
	assert.Equal(t, "PIK3CA", got.Mutations[0].GeneID)
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_ListAndListByStudy(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPatient("luad", "P2")))
	require.NoError(t, store.Save(ctx, testPatient("brca", "P3")))
	require.NoError(t, store.Save(ctx, testPatient("luad", "P1")))

	all, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "brca:P3", all[0].Ref())
	assert.Equal(t, "luad:P1", all[1].Ref())
	assert.Equal(t, "luad:P2", all[2].Ref())
	assert.Len(t, all[2].Mutations, 2)

	page, err := store.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "luad:P1", page[0].Ref())

	luad, err := store.ListByStudy(ctx, "luad")
	require.NoError(t, err)
	require.Len(t, luad, 2)
	assert.Equal(t, "P1", luad[0].PatientID)
	assert.Equal(t, "P2", luad[1].PatientID)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPatient("brca", "P1")))
	require.NoError(t, store.Delete(ctx, "brca", "P1"))

	got, err := store.Get(ctx, "brca", "P1")
	require.NoError(t, err)
	assert.Nil(t, got)

	var orphans int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM patient_mutations").Scan(&orphans))
	assert.Zero(t, orphans)

	assert.NoError(t, store.Delete(ctx, "brca", "P1"), "deleting a missing patient is not an error")
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, testPatient("brca", "P1")))
	require.NoError(t, source.Save(ctx, testPatient("brca", "P2")))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, 2, export.Count)
	assert.Len(t, export.Patients, 2)

	target := createTestStore(t)
	defer target.Close()
	require.NoError(t, target.Save(ctx, testPatient("brca", "P2")))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	got, err := target.Get(ctx, "brca", "P1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testPatient("brca", "P1").Mutations, got.Mutations)
}

func TestSQLiteStore_ImportRejectsInvalidPatients(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	bad := testPatient("brca", "P1")
	bad.Mutations[0].Chromosome = ""
	payload, err := json.Marshal(Export{Version: ExportVersion, Count: 1, Patients: []*domain.Patient{bad}})
	require.NoError(t, err)

	_, _, err = store.ImportJSON(context.Background(), bytes.NewReader(payload))

	assert.ErrorIs(t, err, domain.ErrInvalidMutation)
}

func TestSQLiteStore_ImportRejectsMalformedJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))

	assert.Error(t, err)
}
