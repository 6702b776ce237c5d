/*
Package ports defines the driven ports (interfaces) of the forge engine.

These interfaces decouple version control and composition from concrete
storage, analytics and messaging systems.

# Key Interfaces

  - KVStore: the only storage primitive the engine needs. Insert-if-absent,
    compare-and-swap, point reads and ordered prefix scans.
  - UsageSource: success-rate signal consumed by the best_performing resolver.
  - UsageRecorder: write side of the usage log.
  - EventPublisher: best-effort notification of durable mutations.
*/
package ports
