package sqlassets

import _ "embed"

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/access.sql
var AccessSQL string

//go:embed schema/tenant_space/records.sql
var RecordsSQL string
