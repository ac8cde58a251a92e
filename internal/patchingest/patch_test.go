// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package patchingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

const samplePatch = `--- a/src/main/java/com/example/Foo.java
+++ b/src/main/java/com/example/Foo.java
@@ -10,3 +10,4 @@ public class Foo {
     public void bar() {
-        return;
+        doSomething();
+        return;
     }
`

func lookupFor(pf *model.ParsedFile) SourceLookup {
	return func(relPath string) (*model.ParsedFile, bool) {
		if pf == nil {
			return nil, false
		}
		return pf, true
	}
}

func TestIngestFile_ModifiedMethodDetected(t *testing.T) {
	pf := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name: "com.example.Foo",
			Methods: []model.MethodInfo{
				{QualifiedName: "com.example.Foo::bar", LineRange: model.LineRange{Start: 9, End: 14}},
				{QualifiedName: "com.example.Foo::untouched", LineRange: model.LineRange{Start: 30, End: 40}},
			},
		}},
	}

	changes, err := IngestFile("myproject.patch", samplePatch, lookupFor(pf), lookupFor(pf))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "com.example.Foo::bar", changes[0].QualifiedName)
	assert.Equal(t, Modified, changes[0].Kind)
	assert.Equal(t, "myproject/src/main/java/com/example/Foo.java", changes[0].File)
}

// TestIngestFile_SignatureFooterStripped grounds P8: identical result with and without
// the trailing "-- \n<version>\n" block.
func TestIngestFile_SignatureFooterStripped(t *testing.T) {
	withFooter := samplePatch + "-- \n2.39.0\n"

	pf := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name:    "com.example.Foo",
			Methods: []model.MethodInfo{{QualifiedName: "com.example.Foo::bar", LineRange: model.LineRange{Start: 9, End: 14}}},
		}},
	}

	withoutChanges, err := IngestFile("p.patch", samplePatch, lookupFor(pf), lookupFor(pf))
	require.NoError(t, err)
	withChanges, err := IngestFile("p.patch", withFooter, lookupFor(pf), lookupFor(pf))
	require.NoError(t, err)

	assert.Equal(t, withoutChanges, withChanges)
}

func TestIngestFile_NewFileIsAdded(t *testing.T) {
	patch := `--- /dev/null
+++ b/src/Bar.java
@@ -0,0 +1,3 @@
+public class Bar {
+    void baz() {}
+}
`
	pf := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name:    "Bar",
			Methods: []model.MethodInfo{{QualifiedName: "Bar::baz", LineRange: model.LineRange{Start: 2, End: 2}}},
		}},
	}

	changes, err := IngestFile("proj.patch", patch, lookupFor(pf), lookupFor(nil))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, Added, changes[0].Kind)
}

// TestIngestFile_DeletedFileIsDeleted grounds §6's "a method appearing only
// in the old file is deleted": a whole-file deletion has no post-image at
// all, so its methods can only be recovered from the pre-image lookup.
func TestIngestFile_DeletedFileIsDeleted(t *testing.T) {
	patch := `--- a/src/Bar.java
+++ /dev/null
@@ -1,3 +0,0 @@
-public class Bar {
-    void baz() {}
-}
`
	oldPf := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name:    "Bar",
			Methods: []model.MethodInfo{{QualifiedName: "Bar::baz", LineRange: model.LineRange{Start: 2, End: 2}}},
		}},
	}

	changes, err := IngestFile("proj.patch", patch, lookupFor(nil), lookupFor(oldPf))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "Bar::baz", changes[0].QualifiedName)
	assert.Equal(t, Deleted, changes[0].Kind)
	assert.Equal(t, "proj/src/Bar.java", changes[0].File)
}

// TestIngestFile_DeletedFileWithoutOldLookupIsEmpty covers the degraded case
// (§7 "non-fatal"): no pre-image source available (e.g. not a git
// workspace), so a whole-file deletion yields nothing rather than an error.
func TestIngestFile_DeletedFileWithoutOldLookupIsEmpty(t *testing.T) {
	patch := `--- a/src/Bar.java
+++ /dev/null
@@ -1,3 +0,0 @@
-public class Bar {
-    void baz() {}
-}
`
	changes, err := IngestFile("proj.patch", patch, lookupFor(nil), lookupFor(nil))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

// TestIngestFile_MethodRemovedWithinModifiedFile covers a partial deletion:
// the file survives the patch, but one of its methods does not.
func TestIngestFile_MethodRemovedWithinModifiedFile(t *testing.T) {
	patch := `--- a/src/Foo.java
+++ b/src/Foo.java
@@ -2,8 +2,5 @@ public class Foo {
     public void bar() {
         return;
     }
-
-    public void removed() {
-    }
 }
`
	oldPf := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name: "Foo",
			Methods: []model.MethodInfo{
				{QualifiedName: "Foo::bar", LineRange: model.LineRange{Start: 3, End: 5}},
				{QualifiedName: "Foo::removed", LineRange: model.LineRange{Start: 7, End: 8}},
			},
		}},
	}
	newPf := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name:    "Foo",
			Methods: []model.MethodInfo{{QualifiedName: "Foo::bar", LineRange: model.LineRange{Start: 3, End: 5}}},
		}},
	}

	changes, err := IngestFile("proj.patch", patch, lookupFor(newPf), lookupFor(oldPf))
	require.NoError(t, err)

	var sawDeleted bool
	for _, c := range changes {
		if c.QualifiedName == "Foo::removed" {
			sawDeleted = true
			assert.Equal(t, Deleted, c.Kind)
		}
	}
	assert.True(t, sawDeleted, "expected Foo::removed to be classified deleted, got %+v", changes)
}

func TestIngestFile_MalformedHunkHeaderIsParseError(t *testing.T) {
	patch := `--- a/Foo.java
+++ b/Foo.java
@@ not a valid header @@
 context
`
	_, err := IngestFile("p.patch", patch, lookupFor(nil), lookupFor(nil))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestResult_SeedMethodsDedupedAndSorted(t *testing.T) {
	r := &Result{Changes: []ChangedMethod{
		{QualifiedName: "B::m"},
		{QualifiedName: "A::m"},
		{QualifiedName: "A::m"},
	}}
	assert.Equal(t, []string{"A::m", "B::m"}, r.SeedMethods())
}
