package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCompose = `
services:
  db:
    image: postgres:16
    container_name: myapp-db
    environment:
      POSTGRES_USER: dev
      POSTGRES_PASSWORD: dev
    ports:
      - "15432:5432"
    volumes:
      - dbdata:/var/lib/postgresql/data
  cache:
    image: redis:7
    environment:
      - REDIS_ARGS=--appendonly yes
    ports:
      - "127.0.0.1:16379:6379/tcp"
  worker:
    image: myapp/worker
`

func loadSample(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCompose), 0o644))
	f, err := Load(path)
	require.NoError(t, err)
	return f
}

func TestLoad_Services(t *testing.T) {
	f := loadSample(t)
	require.Len(t, f.Services, 3)

	db, ok := f.Service("db")
	require.True(t, ok)
	require.Equal(t, "postgres:16", db.Image)
	require.Equal(t, "myapp-db", db.ContainerName)

	_, ok = f.Service("missing")
	require.False(t, ok)
}

func TestEnvList_MapAndListForms(t *testing.T) {
	f := loadSample(t)

	db, _ := f.Service("db")
	require.Equal(t, "dev", db.Environment["POSTGRES_USER"])

	cache, _ := f.Service("cache")
	require.Equal(t, "--appendonly yes", cache.Environment["REDIS_ARGS"])
}

func TestPortBindings(t *testing.T) {
	f := loadSample(t)

	db, _ := f.Service("db")
	require.Equal(t, []PortBinding{{Host: 15432, Container: 5432}}, db.PortBindings())

	// IP-prefixed form with a protocol suffix.
	cache, _ := f.Service("cache")
	require.Equal(t, []PortBinding{{Host: 16379, Container: 6379}}, cache.PortBindings())

	worker, _ := f.Service("worker")
	require.Empty(t, worker.PortBindings())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
