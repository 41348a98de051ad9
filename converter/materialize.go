package converter

// materialize.go: writes a Result to {root}/{stem}/{stem}.md plus
// {root}/{stem}/{stem}_images/. Output is staged in a sibling directory and
// swapped in with a rename, so a rerun replaces the folder wholesale and a
// failed write leaves no partial folder behind.

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ImagesDirName is the images folder name for a stem.
func ImagesDirName(stem string) string { return stem + "_images" }

// materialize writes res under root and returns the path of the Markdown
// file. When inline is set, images are embedded as data URIs and no images
// folder is written.
func materialize(res *Result, root string, inline bool) (string, error) {
	src := res.SourcePath
	stem := SanitizeStem(src)

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return "", wrapError(KindOutputWriteFailure, src, err, "create output root")
	}
	staging, err := os.MkdirTemp(root, ".doc2md-tmp-*")
	if err != nil {
		return "", wrapError(KindOutputWriteFailure, src, err, "create staging directory")
	}
	done := false
	defer func() {
		if !done {
			_ = os.RemoveAll(staging)
		}
	}()
	if err := os.Chmod(staging, dirPerm); err != nil {
		return "", wrapError(KindOutputWriteFailure, src, err, "set folder permissions")
	}

	names := uniqueImageNames(res.Images)
	imagesDir := ImagesDirName(stem)

	// The k-th reference to an id maps to the k-th image carrying it; any
	// further references reuse the last.
	byID := make(map[string][]int, len(res.Images))
	for i, img := range res.Images {
		byID[img.ID] = append(byID[img.ID], i)
	}
	seen := make(map[string]int, len(byID))
	markdown := rewriteImageRefs(res.Markdown, func(dest string) (string, bool) {
		idx, ok := byID[dest]
		if !ok {
			return "", false
		}
		k := seen[dest]
		seen[dest]++
		i := idx[min(k, len(idx)-1)]
		if inline {
			return dataURI(res.Images[i].Data), true
		}
		return EscapeForMarkdown(imagesDir + "/" + names[i]), true
	})

	if !inline && len(res.Images) > 0 {
		dir := filepath.Join(staging, imagesDir)
		if err := os.Mkdir(dir, dirPerm); err != nil {
			return "", wrapError(KindOutputWriteFailure, src, err, "create images folder")
		}
		for i, img := range res.Images {
			if err := os.WriteFile(filepath.Join(dir, names[i]), img.Data, filePerm); err != nil {
				return "", wrapError(KindOutputWriteFailure, src, err, "write image %s", names[i])
			}
		}
	}

	if markdown != "" && !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	mdName := stem + ".md"
	if err := os.WriteFile(filepath.Join(staging, mdName), []byte(markdown), filePerm); err != nil {
		return "", wrapError(KindOutputWriteFailure, src, err, "write %s", mdName)
	}

	final := filepath.Join(root, stem)
	if err := os.RemoveAll(final); err != nil {
		return "", wrapError(KindOutputWriteFailure, src, err, "remove previous output")
	}
	if err := os.Rename(staging, final); err != nil {
		return "", wrapError(KindOutputWriteFailure, src, err, "move output into place")
	}
	done = true
	return filepath.Join(final, mdName), nil
}

// uniqueImageNames returns one file name per image, sanitized and
// de-duplicated (case-insensitively) with a numeric suffix before the
// extension: a.png, a_1.png, a_2.png.
func uniqueImageNames(images []Image) []string {
	names := make([]string, len(images))
	taken := make(map[string]bool, len(images))
	for i, img := range images {
		name := sanitizeImageID(img.ID)
		if taken[strings.ToLower(name)] {
			ext := filepath.Ext(name)
			base := strings.TrimSuffix(name, ext)
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
				if !taken[strings.ToLower(candidate)] {
					name = candidate
					break
				}
			}
		}
		taken[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func dataURI(data []byte) string {
	mediaType := http.DetectContentType(data)
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
