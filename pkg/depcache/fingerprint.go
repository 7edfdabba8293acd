// Package depcache implements the dependency cache: a memoization layer
// over command-plus-artifact executions keyed by a SHA-1 fingerprint of
// commands, input/output artifacts, and extra parameters. See spec.md §4.4.
package depcache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"

	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
)

// CacheInput is the set of values the cache key is computed over.
type CacheInput struct {
	Commands    [][]string
	Artifacts   artifacts.Plan
	ExtraParams map[string]any
}

// cacheKeyArtifact is the JSON-serializable shape used to compute the key.
// Hashed outputs have their destination path cleared before hashing (Open
// Question 1 in SPEC_FULL.md §9): the destination is free to move without
// invalidating the cache entry, because the value is identified by content.
type cacheKeyArtifact struct {
	Inputs  []cacheKeyInput  `json:"inputs"`
	Outputs []cacheKeyOutput `json:"outputs"`
}

type cacheKeyInput struct {
	Dest       string `json:"dest"`
	SrcPath    string `json:"src_path,omitempty"`
	Digest     string `json:"digest,omitempty"`
	Executable bool   `json:"executable"`
}

type cacheKeyOutput struct {
	Src          string `json:"src"`
	Dest         string `json:"dest,omitempty"`
	Executable   bool   `json:"executable"`
	Optional     bool   `json:"optional"`
	Maxlen       int    `json:"maxlen"`
	Hash         bool   `json:"hash"`
	Intermediate bool   `json:"intermediate"`
}

// Key computes the SHA-1 cache key over (commands, artifacts with dest
// cleared on hashed outputs, extra params), matching spec.md §4.4 exactly.
func (in CacheInput) Key() string {
	var ka cacheKeyArtifact
	for _, i := range in.Artifacts.Inputs {
		ki := cacheKeyInput{Dest: i.DestInSandbox, Executable: i.Executable}
		if i.Source.IsDigest() {
			ki.Digest = i.Source.Resolve().String()
		} else {
			ki.SrcPath = i.Source.SrcPath
		}
		ka.Inputs = append(ka.Inputs, ki)
	}
	for _, o := range in.Artifacts.Outputs {
		ko := cacheKeyOutput{
			Src:          o.SrcInSandbox,
			Executable:   o.Executable,
			Optional:     o.Optional,
			Maxlen:       o.Maxlen,
			Hash:         o.Hash,
			Intermediate: o.Intermediate,
		}
		if !o.Hash {
			ko.Dest = o.Sink.DestPath
		}
		ka.Outputs = append(ka.Outputs, ko)
	}

	payload := struct {
		Commands  [][]string        `json:"commands"`
		Artifacts cacheKeyArtifact  `json:"artifacts"`
		Extra     map[string]any    `json:"extra"`
	}{
		Commands:  in.Commands,
		Artifacts: ka,
		Extra:     sortedCopy(in.ExtraParams),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		// Marshal only fails on unsupported types (channels, funcs) which
		// never appear in ExtraParams in practice; treat as a programmer
		// error surfaced through a degenerate, always-missing key.
		return "invalid-cache-input"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// sortedCopy returns a copy of m with keys in a deterministic order when
// re-marshaled (Go's encoding/json already sorts map keys, this documents
// that assumption rather than changing behavior).
func sortedCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

// Fingerprint is the cache value stored per key.
type Fingerprint struct {
	Digests           []digest.Digest   `json:"digests"`
	InputFingerprints []string          `json:"input_fingerprints"`
	OutputFingerprints []string         `json:"output_fingerprints"`
	Logs              []sandbox.RunLog  `json:"logs"`
}

// computeInputFingerprints hashes every filesystem-sourced input (digest
// sourced inputs are already identified by the digest in the key).
func computeInputFingerprints(plan artifacts.Plan) ([]string, error) {
	var out []string
	for _, in := range plan.Inputs {
		if in.Source.IsDigest() {
			continue
		}
		d, err := hashFile(in.Source.SrcPath)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// computeOutputFingerprints hashes every non-intermediate, non-hashed
// output currently on disk, empty string if absent.
func computeOutputFingerprints(plan artifacts.Plan) ([]string, error) {
	var out []string
	for _, o := range plan.Outputs {
		if o.Intermediate || o.Hash {
			continue
		}
		if o.Sink.DestPath == "" {
			continue
		}
		d, err := hashFileOrEmpty(o.Sink.DestPath)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	d, err := digest.Of(f)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// hashFileOrEmpty fingerprints a non-hash output as its content digest plus
// the destination file's executable bit. Outputs without hash: true are
// identified by their destination path, not by content alone (spec.md §8:
// "the bit is part of the fingerprint and toggling evicts"), unlike
// hash-flagged outputs whose fingerprint is the content digest alone,
// restored at materialization time instead of being cache-key material.
func hashFileOrEmpty(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	d, err := hashFile(path)
	if err != nil {
		return "", err
	}
	mode := "-"
	if info.Mode().Perm()&0o111 != 0 {
		mode = "x"
	}
	return d + ":" + mode, nil
}
