package bull

import "github.com/redis/go-redis/v9"

// Lua scripts for multi-key operations that must be atomic, mirroring the
// scripts Bull itself ships.

// pauseScript moves the waiting list between wait and paused and flips
// meta-paused.
//
// KEYS: src, dst, meta-paused, event channel
// ARGV: "paused" | "resumed"
var pauseScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    redis.call("RENAME", KEYS[1], KEYS[2])
end
if ARGV[1] == "paused" then
    redis.call("SET", KEYS[3], 1)
else
    redis.call("DEL", KEYS[3])
end
redis.call("PUBLISH", KEYS[4], ARGV[1])
return 1
`)

// cleanScript removes unlocked jobs of one set older than a timestamp.
//
// KEYS: set key
// ARGV: job key prefix, max timestamp (ms), limit (0 = unlimited), type
var cleanScript = redis.NewScript(`
local isList = ARGV[4] == "wait" or ARGV[4] == "active" or ARGV[4] == "paused"
local ids
if isList then
    ids = redis.call("LRANGE", KEYS[1], 0, -1)
else
    ids = redis.call("ZRANGE", KEYS[1], 0, -1)
end
local limit = tonumber(ARGV[3])
local maxTs = tonumber(ARGV[2])
local deleted = {}
for _, id in ipairs(ids) do
    if limit > 0 and #deleted >= limit then
        break
    end
    local jobKey = ARGV[1] .. id
    if redis.call("EXISTS", jobKey .. ":lock") == 0 then
        local ts = redis.call("HGET", jobKey, "finishedOn")
        if not ts then
            ts = redis.call("HGET", jobKey, "timestamp")
        end
        if (not ts) or tonumber(ts) < maxTs then
            if isList then
                redis.call("LREM", KEYS[1], 0, id)
            else
                redis.call("ZREM", KEYS[1], id)
            end
            redis.call("DEL", jobKey, jobKey .. ":logs")
            table.insert(deleted, id)
        end
    end
end
return deleted
`)

// emptyScript deletes every waiting, paused and delayed job.
//
// KEYS: wait, paused, delayed, priority
// ARGV: job key prefix
var emptyScript = redis.NewScript(`
local ids = {}
for _, k in ipairs({KEYS[1], KEYS[2]}) do
    for _, id in ipairs(redis.call("LRANGE", k, 0, -1)) do
        table.insert(ids, id)
    end
end
for _, id in ipairs(redis.call("ZRANGE", KEYS[3], 0, -1)) do
    table.insert(ids, id)
end
for _, id in ipairs(ids) do
    redis.call("DEL", ARGV[1] .. id, ARGV[1] .. id .. ":logs")
end
redis.call("DEL", KEYS[1], KEYS[2], KEYS[3], KEYS[4])
return #ids
`)

// stateScript resolves the state of a job in Bull's precedence order.
//
// KEYS: completed, failed, delayed, active, wait, paused
// ARGV: job id
var stateScript = redis.NewScript(`
local id = ARGV[1]
if redis.call("ZSCORE", KEYS[1], id) then return "completed" end
if redis.call("ZSCORE", KEYS[2], id) then return "failed" end
if redis.call("ZSCORE", KEYS[3], id) then return "delayed" end
local function inList(key)
    for _, v in ipairs(redis.call("LRANGE", key, 0, -1)) do
        if v == id then return true end
    end
    return false
end
if inList(KEYS[4]) then return "active" end
if inList(KEYS[5]) then return "waiting" end
if inList(KEYS[6]) then return "paused" end
return "stuck"
`)

// reprocessScript moves a failed job back to the waiting list.
//
// KEYS: job key, lock key, failed, wait, paused, meta-paused, waiting channel
// ARGV: job id
// Returns 1 ok, 0 missing, -1 locked, -2 not failed.
var reprocessScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return 0 end
if redis.call("EXISTS", KEYS[2]) == 1 then return -1 end
if redis.call("ZREM", KEYS[3], ARGV[1]) == 0 then return -2 end
redis.call("HDEL", KEYS[1], "finishedOn", "processedOn", "failedReason")
local target = KEYS[4]
if redis.call("EXISTS", KEYS[6]) == 1 then target = KEYS[5] end
redis.call("LPUSH", target, ARGV[1])
redis.call("PUBLISH", KEYS[7], ARGV[1])
return 1
`)

// promoteScript moves a delayed job to the waiting list.
//
// KEYS: job key, delayed, wait, paused, meta-paused, waiting channel
// ARGV: job id
// Returns 1 ok, 0 missing, -2 not delayed.
var promoteScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return 0 end
if redis.call("ZREM", KEYS[2], ARGV[1]) == 0 then return -2 end
redis.call("HSET", KEYS[1], "delay", 0)
local target = KEYS[3]
if redis.call("EXISTS", KEYS[5]) == 1 then target = KEYS[4] end
redis.call("LPUSH", target, ARGV[1])
redis.call("PUBLISH", KEYS[6], ARGV[1])
return 1
`)

// removeScript deletes a job from every structure of its queue.
//
// KEYS: job key, lock key, active, wait, paused, delayed, priority,
//       completed, failed, removed channel
// ARGV: job id
// Returns 1 ok, 0 missing, -1 locked.
var removeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return 0 end
if redis.call("EXISTS", KEYS[2]) == 1 then return -1 end
local id = ARGV[1]
redis.call("LREM", KEYS[3], 0, id)
redis.call("LREM", KEYS[4], 0, id)
redis.call("LREM", KEYS[5], 0, id)
redis.call("ZREM", KEYS[6], id)
redis.call("ZREM", KEYS[7], id)
redis.call("ZREM", KEYS[8], id)
redis.call("ZREM", KEYS[9], id)
redis.call("DEL", KEYS[1], KEYS[1] .. ":logs")
redis.call("PUBLISH", KEYS[10], id)
return 1
`)
