package store

// schema backs the two tables LocalStore needs once block storage
// itself lives in-memory on ledger.Chain: the set of sources already
// consumed, and the set of transactions still unspent.
const schema = `
CREATE TABLE IF NOT EXISTS consumed_sources (
  owner_id  INTEGER NOT NULL,
  tx_number INTEGER NOT NULL,
  PRIMARY KEY (owner_id, tx_number)
);

CREATE TABLE IF NOT EXISTS unspent (
  owner_id  INTEGER NOT NULL,
  tx_number INTEGER NOT NULL,
  amount    INTEGER NOT NULL,
  PRIMARY KEY (owner_id, tx_number)
);
`
