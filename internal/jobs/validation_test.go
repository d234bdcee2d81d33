package jobs

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patch-warden/internal/core"
)

const docsPatch = `diff --git a/docs/index.rst b/docs/index.rst
--- a/docs/index.rst
+++ b/docs/index.rst
@@ -1,2 +1,3 @@
 Title
+New paragraph
 Footer
`

const fooPatch = `diff --git a/dom/Foo.cpp b/dom/Foo.cpp
--- a/dom/Foo.cpp
+++ b/dom/Foo.cpp
@@ -10,2 +10,3 @@
 int a;
+int b;
 int c;
`

const arcconfigPatch = `diff --git a/.arcconfig b/.arcconfig
--- a/.arcconfig
+++ b/.arcconfig
@@ -1 +1 @@
-{}
+{"phabricator.uri": "https://phabricator.example.com"}
`

const codePatch = fooPatch + arcconfigPatch

func TestTouchedFiles(t *testing.T) {
	stack := core.PatchStack{
		{ID: 1, Content: codePatch},
		{ID: 2, Content: docsPatch},
		{ID: 3, Content: docsPatch},
	}
	files, err := TouchedFiles(stack)
	require.NoError(t, err)
	assert.Equal(t, []string{".arcconfig", "docs/index.rst", "dom/Foo.cpp"}, files)

	files, err = TouchedFiles(nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSkippableTouched(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	tests := []struct {
		name      string
		files     []string
		skippable []string
		want      []string
	}{
		{
			name:      "Exact path",
			files:     []string{".arcconfig", "dom/Foo.cpp"},
			skippable: []string{".arcconfig"},
			want:      []string{".arcconfig"},
		},
		{
			name:      "Pattern",
			files:     []string{"docs/index.rst", "docs/api.rst", "dom/Foo.cpp"},
			skippable: []string{"docs/*.rst"},
			want:      []string{"docs/index.rst", "docs/api.rst"},
		},
		{
			name:      "With ./ prefix",
			files:     []string{"./.arcconfig"},
			skippable: []string{".arcconfig"},
			want:      []string{".arcconfig"},
		},
		{
			name:      "Nothing skippable",
			files:     []string{"dom/Foo.cpp"},
			skippable: []string{".arcconfig", "docs/*"},
		},
		{
			name:  "Empty skippable set",
			files: []string{".arcconfig"},
		},
		{
			name:      "Malformed pattern is ignored",
			files:     []string{"dom/Foo.cpp", ".arcconfig"},
			skippable: []string{"[", ".arcconfig"},
			want:      []string{".arcconfig"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SkippableTouched(logger, tt.files, tt.skippable)
			assert.Equal(t, tt.want, got)
		})
	}
}
