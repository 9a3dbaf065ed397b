package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
)

// Deb builds a minimal binary package whose data member installs files, keyed
// by path relative to the install root.
func Deb(files map[string][]byte) []byte {
	control := tarGz(map[string][]byte{
		"control": []byte("Package: fixture\nVersion: 1.0\nArchitecture: amd64\nMaintainer: nobody <nobody@example.com>\nDescription: test fixture\n"),
	})
	data := tarGz(files)

	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")
	arMember(&buf, "debian-binary", []byte("2.0\n"))
	arMember(&buf, "control.tar.gz", control)
	arMember(&buf, "data.tar.gz", data)
	return buf.Bytes()
}

func arMember(buf *bytes.Buffer, name string, data []byte) {
	fmt.Fprintf(buf, "%-16s%-12d%-6d%-6d%-8s%-10d`\n", name, 0, 0, 0, "100644", len(data))
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte('\n')
	}
}

func tarGz(files map[string][]byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	dirs := map[string]bool{}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
			dirs[dir] = true
		}
	}
	must(tw.WriteHeader(&tar.Header{Name: "./", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: epoch}))
	for _, dir := range slices.Sorted(maps.Keys(dirs)) {
		must(tw.WriteHeader(&tar.Header{Name: "./" + dir + "/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: epoch}))
	}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		contents := files[name]
		must(tw.WriteHeader(&tar.Header{
			Name:     "./" + strings.TrimPrefix(name, "/"),
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			ModTime:  epoch,
			Size:     int64(len(contents)),
		}))
		_, err := tw.Write(contents)
		must(err)
	}
	must(tw.Close())
	must(gz.Close())
	return buf.Bytes()
}

var epoch = time.Unix(0, 0)

func must(err error) {
	if err != nil {
		panic(err)
	}
}
