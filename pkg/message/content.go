// Copyright 2025 Kadir Pekel
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

package message

// ContentPart is a closed sum type: Text, Template, Image or File. The
// sum is closed with an unexported marker method so no package outside
// message can add a fifth variant.
type ContentPart interface {
	isContentPart()
	// Kind returns the wire-format discriminant ("text", "template", "image_url", "file").
	Kind() string
}

// Text is a plain text content part.
type Text struct {
	Value string
}

func (Text) isContentPart() {}
func (Text) Kind() string   { return "text" }

// Template is rendered content backed by a template string; RequiredVars
// names the variables the rendering port must supply. ContextSnapshot, if
// set, captures the resolved variables at render time so the part can be
// redisplayed later without access to a live rendering context.
type Template struct {
	TemplateString  string
	RequiredVars    []string
	ContextSnapshot map[string]any
}

func (Template) isContentPart() {}
func (Template) Kind() string   { return "template" }

// ImageDetail controls how much of an image an LLM port should analyze.
type ImageDetail string

const (
	ImageDetailAuto ImageDetail = ""
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
)

// Image is an image content part, either a remote URL or inline bytes.
type Image struct {
	URL    string
	Bytes  []byte
	Detail ImageDetail
}

func (Image) isContentPart() {}
func (Image) Kind() string   { return "image_url" }

// File is a file content part, either a filesystem path or inline bytes.
type File struct {
	Path  string
	Bytes []byte
	Name  string
}

func (File) isContentPart() {}
func (File) Kind() string   { return "file" }
