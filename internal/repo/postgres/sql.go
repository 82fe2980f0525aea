package postgres

const orderColumns = `
id, client_id, driver_id, status, start_address, end_address,
start_lat, start_lng, end_lat, end_lng,
approx_distance_km, approx_duration_min, actual_duration_min,
base_price, bonus_fare, price, total_price, notes, cancellation_source,
created_at, updated_at, accepted_at, started_at, completed_at, cancelled_at
`

const orderSelectByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

const orderSelectByIDForUpdateSQL = orderSelectByIDSQL + " FOR UPDATE"

const orderListWhere = `
FROM orders
WHERE ($1::text[] IS NULL OR status = ANY($1))
  AND ($2::uuid IS NULL OR client_id = $2)
  AND ($3::uuid IS NULL OR driver_id = $3)
`

const orderListOldestFirstSQL = `SELECT ` + orderColumns + orderListWhere + `
ORDER BY created_at, id
LIMIT $4 OFFSET $5
`

const orderListNewestFirstSQL = `SELECT ` + orderColumns + orderListWhere + `
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`

const orderInsertSQL = `
INSERT INTO orders (` + orderColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,
  $7,$8,$9,$10,
  $11,$12,$13,
  $14,$15,$16,$17,$18,$19,
  $20,$21,$22,$23,$24,$25
)
`

// Route, addresses, client and pricing inputs are immutable after insert.
const orderUpdateSQL = `
UPDATE orders SET
  driver_id = $1,
  status = $2,
  actual_duration_min = $3,
  price = $4,
  total_price = $5,
  cancellation_source = $6,
  updated_at = $7,
  accepted_at = $8,
  started_at = $9,
  completed_at = $10,
  cancelled_at = $11
WHERE id = $12
`

const clientHasActiveOrderSQL = `
SELECT EXISTS (
  SELECT 1 FROM orders
  WHERE client_id = $1 AND status IN ('PENDING', 'ACCEPTED', 'IN_PROGRESS')
)
`

const driverHasActiveOrderSQL = `
SELECT EXISTS (
  SELECT 1 FROM orders
  WHERE driver_id = $1 AND status IN ('PENDING', 'ACCEPTED', 'IN_PROGRESS')
)
`

const driverColumns = `
id, external_id, chat_address, full_name, phone_number,
car_model, car_color, license_plate, status, last_heartbeat_at, created_at, updated_at
`

const driverSelectByIDSQL = `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

const driverSelectByIDForUpdateSQL = driverSelectByIDSQL + " FOR UPDATE"

const driverSelectByExternalIDSQL = `SELECT ` + driverColumns + ` FROM drivers WHERE external_id = $1`

const driverListSQL = `
SELECT ` + driverColumns + `
FROM drivers
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at, id
LIMIT $2 OFFSET $3
`

const driverInsertSQL = `
INSERT INTO drivers (` + driverColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`

const driverUpdateSQL = `
UPDATE drivers SET
  full_name = $1,
  phone_number = $2,
  car_model = $3,
  car_color = $4,
  license_plate = $5,
  status = $6,
  last_heartbeat_at = $7,
  updated_at = $8
WHERE id = $9
`

const clientColumns = `id, external_id, chat_address, full_name, phone_number, created_at, updated_at`

const clientSelectByIDSQL = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

const clientSelectByIDForUpdateSQL = clientSelectByIDSQL + " FOR UPDATE"

const clientSelectByExternalIDSQL = `SELECT ` + clientColumns + ` FROM clients WHERE external_id = $1`

const clientInsertSQL = `
INSERT INTO clients (` + clientColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7)
`

const clientUpdateSQL = `
UPDATE clients SET
  full_name = $1,
  phone_number = $2,
  updated_at = $3
WHERE id = $4
`

const outboxInsertSQL = `
INSERT INTO outbox_events (
  id, event_type, aggregate_type, aggregate_id, payload, occurred_at
) VALUES ($1,$2,$3,$4,$5,$6)
`

const outboxFetchPendingSQL = `
SELECT id, event_type, aggregate_type, aggregate_id, payload, occurred_at
FROM outbox_events
WHERE published_at IS NULL
ORDER BY occurred_at
LIMIT $1
`

const outboxMarkPublishedSQL = `
UPDATE outbox_events
SET published_at = now()
WHERE id = ANY($1::uuid[])
`

const outboxPurgeSQL = `
DELETE FROM outbox_events
WHERE published_at IS NOT NULL AND published_at < $1
`
