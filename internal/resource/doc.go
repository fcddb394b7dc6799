// Package resource discovers the sub-resources an HTML site depends on.
//
// The pieces compose leaf-first:
//
//   - Classifier decides whether a resource URL is same-origin for a given host.
//     URLs without a host are local; malformed URLs follow a tunable policy and
//     are reported as *URLParseError.
//   - Extractor parses one document with goquery and emits a Reference for each
//     script, stylesheet, image, media source, object, iframe, Google Fonts link
//     and (heuristically) inline Worker construction.
//   - Scanner walks a tree on an afero.Fs, feeds every .html file to the
//     Extractor, optionally in parallel, and returns a Collection sorted by the
//     directory of each containing file together with a Stats side channel.
//
// Filter narrows a Collection for display; it never changes scan results.
package resource
