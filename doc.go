// tdk is the Trip Data Kit. It contains a small pipeline runner and the
// sources, codecs and destinations needed to move public taxi trip record files
// into databases, buckets and warehouses.
//
// Every flow in tdk is a Pipeline: a linear chain of stages run by a Runner.
// The stages fall into four kinds.
//
// 1. Parameter Source
//
//    A ParamSource supplies the Params for a run: connection credentials,
//    source URL, destination names. Params are immutable and are checked for
//    the Pipeline's Required keys before any stage runs. A missing or
//    malformed value is a ConfigurationError. Credentials usually come from
//    named blocks in a TOML config file (see LoadBlock) so that nothing is
//    read from process-wide state once the run has started.
//
// 2. Fetch
//
//    A fetch stage retrieves raw data from somewhere (an HTTP URL or a bucket)
//    and returns an ArtifactHandle for the local copy, or a Dataset if it
//    parses the data as well. Fetching is idempotent, so fetch stages are
//    retried (DefaultFetchAttempts) and are often cached: with a CachePolicy
//    the runner stores the output under a key derived from the input and
//    reuses it until it expires.
//
// 3. Transform
//
//    A transform stage turns one Dataset into another. Transforms are pure
//    and never retried; FillNull is the canonical example. Bad input is a
//    TransformError.
//
// 4. Load
//
//    A load stage writes a Dataset or artifact to its destination, in
//    "replace" or "append" mode, in bounded chunks. Loads are not retried
//    unless a step asks for it.
//
// Whatever happens during a run, the runner finally passes every artifact
// handle produced by a stage (or registered with Track) to the pipeline's
// cleanup function. FanOut runs the same pipeline over many parameter sets.
package tdk
