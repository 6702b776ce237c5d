/*
Package domain contains the core models of the forge prompt registry.

It defines the versioned content unit (Document), the containers that own
documents over time (Component, Version, Branch) and the reproducibility
record produced by composition (Manifest). The package is free of I/O and
persistence so that every other layer can depend on it.

# Key Entities

  - Document: ordered sections plus a variable map. Identity is the set of
    (section id, content) pairs plus the variables; order only matters on render.
  - Component: a named, typed container identified by an immutable slug.
  - Version: an immutable snapshot addressed by (component, branch, sequence).
  - Branch: a movable head pointer over an append-only log of versions.
  - Manifest: the exact inputs of one composition, sufficient to replay it.
*/
package domain
