package storage

const schema = `
-- Collection-wide scheduling state. There is exactly one row.
CREATE TABLE IF NOT EXISTS col (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    crt INTEGER NOT NULL,              -- unix time day indexes count from
    last_unburied INTEGER NOT NULL DEFAULT 0,
    usn INTEGER NOT NULL DEFAULT 0,
    cur_deck INTEGER NOT NULL DEFAULT 1,
    active_decks TEXT NOT NULL DEFAULT '[1]',
    next_pos INTEGER NOT NULL DEFAULT 1
);

-- Shared deck options, stored as JSON.
CREATE TABLE IF NOT EXISTS deck_configs (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    filtered INTEGER NOT NULL DEFAULT 0,
    conf_id INTEGER NOT NULL DEFAULT 1,
    filter TEXT,                        -- JSON search settings of filtered decks
    new_day INTEGER NOT NULL DEFAULT 0,
    new_count INTEGER NOT NULL DEFAULT 0,
    rev_day INTEGER NOT NULL DEFAULT 0,
    rev_count INTEGER NOT NULL DEFAULT 0,
    lrn_day INTEGER NOT NULL DEFAULT 0,
    lrn_count INTEGER NOT NULL DEFAULT 0,
    time_day INTEGER NOT NULL DEFAULT 0,
    time_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY,
    guid TEXT NOT NULL UNIQUE,         -- stable identity across checksum changes
    checksum TEXT NOT NULL UNIQUE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '',
    mod INTEGER NOT NULL DEFAULT 0
);

-- 'due' is a position for new cards, a day index for review and day
-- learning cards, and a unix timestamp for learning cards.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY,
    nid INTEGER NOT NULL,
    did INTEGER NOT NULL,
    odid INTEGER NOT NULL DEFAULT 0,
    ord INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL DEFAULT 0,
    queue INTEGER NOT NULL DEFAULT 0,
    due INTEGER NOT NULL DEFAULT 0,
    odue INTEGER NOT NULL DEFAULT 0,
    ivl INTEGER NOT NULL DEFAULT 0,
    factor INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    left INTEGER NOT NULL DEFAULT 0,
    flags INTEGER NOT NULL DEFAULT 0,
    mod INTEGER NOT NULL DEFAULT 0,
    usn INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(nid) REFERENCES notes(id)
);

CREATE INDEX IF NOT EXISTS ix_cards_sched ON cards (did, queue, due);
CREATE INDEX IF NOT EXISTS ix_cards_nid ON cards (nid);

-- One row per answer; positive intervals are days, negative are seconds.
CREATE TABLE IF NOT EXISTS revlog (
    id INTEGER NOT NULL,               -- answer time in milliseconds
    cid INTEGER NOT NULL,
    usn INTEGER NOT NULL,
    ease INTEGER NOT NULL,
    ivl INTEGER NOT NULL,
    last_ivl INTEGER NOT NULL,
    factor INTEGER NOT NULL,
    time INTEGER NOT NULL,
    type INTEGER NOT NULL,

    PRIMARY KEY (id, cid)
);

CREATE INDEX IF NOT EXISTS ix_revlog_cid ON revlog (cid);
`
