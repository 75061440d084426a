// Package migrations embeds the schema files for each store backend and
// parses them into ordered, checksummed migrations.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed postgres/*.sql bigquery/*.sql
var files embed.FS

// Backend directories inside the embedded filesystem.
const (
	Postgres = "postgres"
	BigQuery = "bigquery"
)

// Migration is a single numbered schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	// Checksum is the sha256 of the file before placeholder substitution.
	Checksum string
}

// filenamePattern matches 0001_name.sql.
var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Load reads the embedded migrations for backend, replacing each
// "{{KEY}}" placeholder with vars[KEY].
func Load(backend string, vars map[string]string) ([]Migration, error) {
	return LoadFS(files, backend, vars)
}

// LoadFS is Load over an arbitrary filesystem. Files that do not match the
// naming pattern are skipped.
func LoadFS(fsys fs.FS, dir string, vars map[string]string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("LoadFS: reading %s: %w", dir, err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("LoadFS: version %04d used by both %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("LoadFS: reading %s: %w", entry.Name(), err)
		}

		sql := string(content)
		for k, v := range vars {
			sql = strings.ReplaceAll(sql, "{{"+k+"}}", v)
		}

		out = append(out, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ParseFilename extracts the version and name from "0001_name.sql".
func ParseFilename(filename string) (version int, name string, ok bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return v, m[2], true
}

// Statements splits a migration into individual statements on ";" at line
// ends. BigQuery jobs accept one DDL statement at a time.
func Statements(sql string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			if stmt := strings.TrimSpace(cur.String()); stmt != ";" {
				out = append(out, strings.TrimSuffix(stmt, ";"))
			}
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
