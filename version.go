package forge

// Version is the forge release, set at build time with
// -ldflags "-X github.com/aretw0/forge.Version=v1.2.3".
var Version = "dev"
