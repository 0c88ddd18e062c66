package usecase

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/domain/types"
)

const (
	fieldEnvironment = "environment"
	fieldSources     = "sources"

	envCommitID = "GIT_COMMIT_ID"
	envRepoName = "GIT_REPO_NAME"
	envIsTag    = "GIT_IS_TAG"
)

// RewriteManifestFile reads the manifest at path and returns its rewritten
// serialization. See RewriteManifest.
func RewriteManifestFile(path string, event *model.PushEvent, isTag bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open manifest", goerr.T(types.ErrTagManifest), goerr.V("path", path))
	}
	defer f.Close()

	out, err := RewriteManifest(f, event, isTag)
	if err != nil {
		return "", goerr.Wrap(err, "failed to rewrite manifest", goerr.V("path", path))
	}
	return out, nil
}

// RewriteManifest walks the top-level fields of a YAML manifest in order.
// Unknown fields are passed through untouched; environment gets the commit
// variables injected and sources entries pointing at the pushed repository are
// pinned to the commit. Missing environment and sources fields are appended.
func RewriteManifest(r io.Reader, event *model.PushEvent, isTag bool) (string, error) {
	root, err := decodeTopLevel(r)
	if err != nil {
		return "", err
	}

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var environmentFound, sourcesFound bool

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		scrub(key)

		switch {
		case isField(key, fieldEnvironment):
			environment, err := rewriteEnvironment(value, event, isTag)
			if err != nil {
				return "", err
			}
			environmentFound = true
			out.Content = append(out.Content, key, environment)

		case isField(key, fieldSources) && !isNull(value):
			sources, err := rewriteSources(value, event)
			if err != nil {
				return "", err
			}
			sourcesFound = true
			out.Content = append(out.Content, key, sources)

		case isField(key, fieldSources):
			// "sources:" without a value is handled as a missing field

		default:
			scrub(value)
			out.Content = append(out.Content, key, value)
		}
	}

	if !environmentFound {
		out.Content = append(out.Content, stringNode(fieldEnvironment), injectedEnvironment(event, isTag))
	}
	if !sourcesFound {
		out.Content = append(out.Content, stringNode(fieldSources), &yaml.Node{
			Kind:    yaml.SequenceNode,
			Tag:     "!!seq",
			Content: []*yaml.Node{stringNode(event.CloneURL + "#" + event.Commit)},
		})
	}

	resolveDanglingAliases(out, map[string]bool{})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return "", goerr.Wrap(err, "failed to encode manifest", goerr.T(types.ErrTagManifest))
	}
	if err := enc.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to encode manifest", goerr.T(types.ErrTagManifest))
	}

	return buf.String(), nil
}

// decodeTopLevel returns the top-level mapping of the first document in r.
// An empty document is an empty mapping.
func decodeTopLevel(r io.Reader) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
		}
		return nil, goerr.Wrap(err, "failed to parse manifest", goerr.T(types.ErrTagManifest))
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
		}
		root = root.Content[0]
	}

	if isNull(root) {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, goerr.New("manifest is not a mapping",
			goerr.T(types.ErrTagManifest),
			goerr.V("line", root.Line),
		)
	}
	return root, nil
}

func rewriteEnvironment(value *yaml.Node, event *model.PushEvent, isTag bool) (*yaml.Node, error) {
	environment := injectedEnvironment(event, isTag)
	environment.Anchor = value.Anchor
	if isNull(value) {
		return environment, nil
	}
	if value.Kind != yaml.MappingNode {
		return nil, goerr.New("environment is not a mapping",
			goerr.T(types.ErrTagManifest),
			goerr.V("line", value.Line),
		)
	}
	if value.Style&yaml.TaggedStyle != 0 {
		environment.Tag = value.Tag
		environment.Style = yaml.TaggedStyle
	}

	injected := make(map[string]struct{}, len(environment.Content)/2)
	for i := 0; i < len(environment.Content); i += 2 {
		injected[environment.Content[i].Value] = struct{}{}
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		key, entry := value.Content[i], value.Content[i+1]
		if key.Kind == yaml.ScalarNode {
			if _, ok := injected[key.Value]; ok {
				continue
			}
		}
		scrub(key)
		scrub(entry)
		environment.Content = append(environment.Content, key, entry)
	}

	return environment, nil
}

func injectedEnvironment(event *model.PushEvent, isTag bool) *yaml.Node {
	env := &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			stringNode(envCommitID), stringNode(event.Commit),
			stringNode(envRepoName), stringNode(event.Repo),
		},
	}
	if isTag {
		env.Content = append(env.Content, stringNode(envIsTag), stringNode("1"))
	}
	return env
}

func rewriteSources(value *yaml.Node, event *model.PushEvent) (*yaml.Node, error) {
	if value.Kind != yaml.SequenceNode {
		return nil, goerr.New("sources is not a sequence",
			goerr.T(types.ErrTagManifest),
			goerr.V("line", value.Line),
		)
	}

	scrub(value)
	for _, entry := range value.Content {
		if entry.Kind != yaml.ScalarNode || entry.ShortTag() != "!!str" {
			continue
		}
		entry.Value = pinSource(entry.Value, event)
	}
	return value, nil
}

// pinSource appends the commit to url when it designates the pushed repository
func pinSource(url string, event *model.PushEvent) string {
	switch {
	case url == event.CloneURL:
		return url + "#" + event.Commit
	case url+".git" == event.CloneURL:
		return url + ".git#" + event.Commit
	default:
		return url
	}
}

// resolveDanglingAliases replaces every alias whose anchor is not defined
// earlier in the output, because the anchored node was dropped or rebuilt,
// with a copy of the node it referred to.
func resolveDanglingAliases(n *yaml.Node, defined map[string]bool) {
	if n.Kind == yaml.AliasNode && !defined[n.Value] && n.Alias != nil {
		*n = *detachedCopy(n.Alias)
		scrub(n)
	}
	if n.Anchor != "" {
		defined[n.Anchor] = true
	}
	for _, child := range n.Content {
		resolveDanglingAliases(child, defined)
	}
}

// detachedCopy deep-copies n without its anchors
func detachedCopy(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	c.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		c.Content[i] = detachedCopy(child)
	}
	return &c
}

// scrub drops comments and presentation styles from n and its children so the
// output is re-serialized in plain block style. Quoted strings that a YAML 1.1
// reader would take for booleans stay quoted.
func scrub(n *yaml.Node) {
	quoted := n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0
	n.HeadComment = ""
	n.LineComment = ""
	n.FootComment = ""
	n.Style &= yaml.TaggedStyle
	if quoted && n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str" && isLegacyBool(n.Value) {
		n.Style |= yaml.DoubleQuotedStyle
	}
	for _, child := range n.Content {
		scrub(child)
	}
}

// isLegacyBool reports whether s is a YAML 1.1 boolean word that YAML 1.2
// resolves as a string
func isLegacyBool(s string) bool {
	switch strings.ToLower(s) {
	case "y", "n", "yes", "no", "on", "off":
		return true
	}
	return false
}

func isField(key *yaml.Node, name string) bool {
	return key.Kind == yaml.ScalarNode && key.Value == name
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func stringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if isLegacyBool(s) {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

// manifestName derives the job tag of a manifest from its file name
func manifestName(fileName string) string {
	return strings.TrimSuffix(fileName, ".yml")
}
