// This package contains hooks to instrument the exporter's own calls into the OS.
//
// See:
//   - [OTel Library Instrumentation Docs]
//   - [OTel Instrumentation Repo]
//
// [OTel Library Instrumentation Docs]: https://opentelemetry.io/docs/concepts/instrumentation/libraries
// [OTel Instrumentation Repo]: https://github.com/open-telemetry/opentelemetry-go-contrib/tree/main/instrumentation
package instrumentation
